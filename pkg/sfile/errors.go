package sfile

import "errors"

// Every failure surfaced by this package wraps one of these sentinels, so
// callers classify with errors.Is and never parse messages.
var (
	// ErrFormat means the header block does not parse: missing or
	// malformed size line, missing END terminator or trailing blank line,
	// or a body that is not a valid literal mapping.
	ErrFormat = errors.New("sfile: malformed header")

	// ErrSchemaMismatch means an append's record layout is not
	// byte-identical to the layout stored in the file.
	ErrSchemaMismatch = errors.New("sfile: record layout does not match file")

	// ErrUnsupported means the operation does not exist for this file's
	// encoding, such as memory-mapping a delimited file.
	ErrUnsupported = errors.New("sfile: operation not supported for this file")

	// ErrNotFound means an open-for-read target does not exist.
	ErrNotFound = errors.New("sfile: file not found")

	// ErrClosed means the handle was closed; open a fresh one.
	ErrClosed = errors.New("sfile: file is closed")

	// ErrLegacyHeader means the file carries the old NROWS size line,
	// which has no fixed width and cannot be rewritten in place. Such
	// files are readable but refuse appends.
	ErrLegacyHeader = errors.New("sfile: legacy header does not support append")

	// ErrReservedKey means a caller-supplied header entry would shadow a
	// reserved key.
	ErrReservedKey = errors.New("sfile: reserved header key")

	// ErrBadColumn means a selector referenced a column absent from the
	// descriptor.
	ErrBadColumn = errors.New("sfile: unknown column")

	// ErrRowRange means a selector referenced a row outside [0, size).
	ErrRowRange = errors.New("sfile: row index out of range")

	// ErrBadSelector means a selector argument could not be classified as
	// rows or columns.
	ErrBadSelector = errors.New("sfile: cannot classify selector argument")
)
