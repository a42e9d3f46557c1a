// Package sfile reads and writes self-describing structured-record files: a
// textual header carrying the record layout and arbitrary keyword metadata,
// followed by the records themselves in packed binary or delimited text.
//
// The first header line holds the record count right-justified in a fixed
// 20-character field, so appends patch the count in place without rewriting
// the rest of the file.
package sfile

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mbaird/sfile/pkg/rec"
	"github.com/mbaird/sfile/pkg/recfile"
)

// Mode selects what an open handle may do.
type Mode int

const (
	// ModeRead opens an existing file for reading.
	ModeRead Mode = iota
	// ModeWrite creates or truncates, then accepts writes.
	ModeWrite
	// ModeAppend extends an existing file, or creates it when missing.
	ModeAppend
)

// ParseMode maps the short mode spellings onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "r+", "a":
		return ModeAppend, nil
	}
	return 0, fmt.Errorf("sfile: unknown mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeWrite:
		return "w"
	case ModeAppend:
		return "r+"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Option adjusts an opening handle.
type Option func(*File)

// WithDelim selects delimited-text mode for writes, using delim between
// fields. Reads take the delimiter from the file's own header.
func WithDelim(delim string) Option {
	return func(f *File) { f.delim = delim }
}

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(f *File) {
		if log != nil {
			f.log = log
		}
	}
}

// WithPadNull writes the NUL padding of fixed-width string fields as spaces
// in delimited mode.
func WithPadNull(on bool) Option {
	return func(f *File) { f.padNull = on }
}

// WithIgnoreNull drops the NUL padding of fixed-width string fields in
// delimited mode instead of writing it.
func WithIgnoreNull(on bool) Option {
	return func(f *File) { f.ignoreNull = on }
}

// File is an open sfile. A handle is bound to a single stream and performs
// synchronous blocking I/O on the caller's goroutine; callers coordinate
// concurrent writers themselves.
type File struct {
	f    *os.File
	rs   io.ReadSeeker // read-only handles over arbitrary streams
	path string
	mode Mode
	log  *slog.Logger

	delim      string
	padNull    bool
	ignoreNull bool

	hdr       *Header
	descr     *rec.Descriptor
	size      int64
	dataStart int64
	shape     []int64
	legacy    bool
	open      bool
}

// Open opens path in the given mode. Append on a missing path degrades to
// write mode; read on a missing path fails with ErrNotFound.
func Open(path string, mode Mode, opts ...Option) (*File, error) {
	f := &File{path: path, mode: mode, log: discardLogger()}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	switch mode {
	case ModeRead:
		f.f, err = os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
			}
			return nil, fmt.Errorf("sfile: open %q: %w", path, err)
		}
	case ModeWrite:
		f.f, err = os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("sfile: create %q: %w", path, err)
		}
	case ModeAppend:
		f.f, err = os.OpenFile(path, os.O_RDWR, 0o644)
		if os.IsNotExist(err) {
			f.f, err = os.Create(path)
		}
		if err != nil {
			return nil, fmt.Errorf("sfile: open %q for append: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("sfile: unknown mode %v", mode)
	}
	f.open = true

	if err := f.loadHeader(); err != nil {
		f.f.Close()
		return nil, err
	}
	return f, nil
}

// OpenReader binds a read-only handle to a stream positioned at byte 0. The
// caller keeps ownership of the stream; Close does not close it.
func OpenReader(rs io.ReadSeeker, opts ...Option) (*File, error) {
	f := &File{rs: rs, mode: ModeRead, log: discardLogger()}
	for _, opt := range opts {
		opt(f)
	}
	f.open = true
	if err := f.loadHeader(); err != nil {
		return nil, err
	}
	if f.hdr == nil {
		return nil, fmt.Errorf("%w: empty stream", ErrFormat)
	}
	return f, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (f *File) stream() io.ReadSeeker {
	if f.f != nil {
		return f.f
	}
	return f.rs
}

// loadHeader decodes the header block and derives the handle state from it.
// A zero-length stream in write or append mode is a fresh file: the header
// is written by the first Write.
func (f *File) loadHeader() error {
	s := f.stream()
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("sfile: seek: %w", err)
	}
	if end == 0 {
		if f.mode == ModeRead && f.f != nil {
			return fmt.Errorf("%w: %q is empty", ErrFormat, f.path)
		}
		return nil
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("sfile: seek: %w", err)
	}

	hdr, dataStart, legacy, err := decodeHeader(s)
	if err != nil {
		return err
	}

	dv, ok := hdr.Get(keyDtype)
	if !ok {
		return fmt.Errorf("%w: header has no %s entry", ErrFormat, keyDtype)
	}
	descr, err := descriptorFromHeaderValue(dv)
	if err != nil {
		return err
	}

	f.hdr = hdr
	f.descr = descr
	f.size, _ = hdr.Int64(keySize)
	f.dataStart = dataStart
	f.legacy = legacy

	// The file's own header decides the encoding. An opener-supplied
	// delimiter applies to fresh files only; honoring it here would let an
	// append interleave text lines into a binary payload.
	f.delim = ""
	if d, ok := hdr.String(keyDelim); ok {
		f.delim = d
	}

	// Bound the claimed size against the bytes actually present before any
	// read sizes a buffer from it. A bogus count must fail the open, not
	// overflow an allocation later.
	avail := end - dataStart
	short := f.size < 0
	if f.delim == "" {
		recSize := int64(descr.Size())
		short = short || (recSize > 0 && f.size > avail/recSize)
	} else {
		// A delimited record is at least its newline.
		short = short || f.size > avail
	}
	if short {
		return fmt.Errorf("%w: size %d exceeds the %d payload bytes present", ErrFormat, f.size, avail)
	}

	f.shape = nil
	if sv, ok := hdr.Get(keyShape); ok {
		if dims, err := shapeFromHeaderValue(sv); err == nil {
			f.shape = dims
		}
	}

	f.log.Debug("header decoded",
		"path", f.path,
		"size", f.size,
		"data_start", f.dataStart,
		"fields", descr.NumFields(),
		"legacy", legacy)
	return nil
}

// Size is the record count from the header.
func (f *File) Size() int64 { return f.size }

// Descriptor is the file's record layout, nil before the first write of a
// fresh file.
func (f *File) Descriptor() *rec.Descriptor { return f.descr }

// Delim is the field delimiter, empty for binary files.
func (f *File) Delim() string { return f.delim }

// Path is the file path, empty for stream handles.
func (f *File) Path() string { return f.path }

// ReadHeader returns the decoded header, nil for a fresh file.
func (f *File) ReadHeader() *Header { return f.hdr }

// Read resolves up to two row/column selector arguments and returns the
// matching records. With no arguments it reads everything. Accepted
// selector shapes: a field name or []string / Columns for the column axis;
// an int, []int64, Rows or Slice for the row axis.
func (f *File) Read(args ...any) (*rec.Records, error) {
	if !f.open {
		return nil, ErrClosed
	}
	if f.hdr == nil {
		return nil, fmt.Errorf("%w: nothing written yet", ErrNotFound)
	}

	if !f.descr.HasFields() {
		return f.readSimple(args)
	}

	rows, cols, err := resolveSelector(f.size, f.descr, args...)
	if err != nil {
		return nil, err
	}
	return f.readRecords(rows, cols)
}

func (f *File) readRecords(rows []int64, cols []string) (*rec.Records, error) {
	if rows == nil && cols == nil && f.delim == "" {
		return f.readBulk()
	}

	s := f.stream()
	if _, err := s.Seek(f.dataStart, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sfile: seek to records: %w", err)
	}
	rf, err := recfile.Open(s, f.descr, recfile.Config{
		Delim: f.delim,
		Rows:  f.size,
	})
	if err != nil {
		return nil, fmt.Errorf("sfile: %w", err)
	}
	out, err := rf.Read(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("sfile: read records: %w", err)
	}
	return out, nil
}

// readBulk pulls the whole binary payload in one read.
func (f *File) readBulk() (*rec.Records, error) {
	s := f.stream()
	if _, err := s.Seek(f.dataStart, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sfile: seek to records: %w", err)
	}
	buf := make([]byte, f.size*int64(f.descr.Size()))
	if _, err := io.ReadFull(s, buf); err != nil {
		return nil, fmt.Errorf("%w: payload short of %d records: %v", ErrFormat, f.size, err)
	}
	return rec.Wrap(f.descr, buf)
}

// readSimple reads a fieldless array. Simple arrays are always read whole;
// a column selector is an error, row selectors are ignored.
func (f *File) readSimple(args []any) (*rec.Records, error) {
	for _, arg := range args {
		kind, _, _, err := classify(arg, f.size)
		if err != nil {
			return nil, err
		}
		if kind == selCols {
			return nil, fmt.Errorf("%w: file has no named fields", ErrBadColumn)
		}
	}

	var out *rec.Records
	if f.delim == "" {
		r, err := f.readBulk()
		if err != nil {
			return nil, err
		}
		out = r
	} else {
		r, err := f.readRecords(nil, nil)
		if err != nil {
			return nil, err
		}
		out = r
	}
	if f.shape != nil {
		out.SetShape(f.shape...)
	}
	return out, nil
}

// ReadWithHeader reads like Read and also hands back the header.
func (f *File) ReadWithHeader(args ...any) (*rec.Records, *Header, error) {
	recs, err := f.Read(args...)
	if err != nil {
		return nil, nil, err
	}
	return recs, f.hdr, nil
}

// Write appends records. The first write of a fresh file also builds and
// writes the header; extra carries caller metadata for it and must not
// shadow the reserved keys. Later writes, and writes to a file opened for
// append, require a layout compatible with the file's and ignore extra.
//
// Payload bytes always go out before the size line is patched, so an
// interrupted write leaves the recorded size at or below the payload
// length, never ahead of it.
func (f *File) Write(records *rec.Records, extra map[string]any) error {
	if !f.open {
		return ErrClosed
	}
	if f.mode == ModeRead {
		return fmt.Errorf("%w: handle is read-only", ErrUnsupported)
	}
	if records == nil || records.Descriptor() == nil {
		return fmt.Errorf("sfile: nil records")
	}

	if f.hdr == nil {
		return f.writeFresh(records, extra)
	}
	return f.writeAppend(records)
}

func (f *File) writeFresh(records *rec.Records, extra map[string]any) error {
	descr := records.Descriptor()
	if f.delim != "" {
		descr = descr.StripByteOrder()
	}

	hdr := NewHeader()
	for k, v := range extra {
		if IsReservedKey(k) {
			return fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
		hdr.Set(k, v)
	}
	hdr.Set(keyDtype, descriptorHeaderValue(descr))
	hdr.Set(keyHasFields, descr.HasFields())
	if f.delim != "" {
		hdr.Set(keyDelim, f.delim)
	}
	if !descr.HasFields() {
		hdr.Set(keyShape, shapeHeaderValue(records))
	}

	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("sfile: seek: %w", err)
	}
	if err := encodeHeader(f.f, 0, hdr); err != nil {
		return fmt.Errorf("sfile: write header: %w", err)
	}
	dataStart, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sfile: locate record start: %w", err)
	}

	if err := f.writePayload(records); err != nil {
		return err
	}
	n := int64(records.Len())
	if err := rewriteSize(f.f, n); err != nil {
		return err
	}
	if _, err := f.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("sfile: seek: %w", err)
	}

	hdr.Set(keySize, n)
	f.hdr = hdr
	f.descr = descr
	f.size = n
	f.dataStart = dataStart
	if !descr.HasFields() {
		f.shape = []int64{n}
		if s := records.Shape(); s != nil {
			f.shape = s
		}
	}
	f.log.Debug("file written", "path", f.path, "size", n, "data_start", dataStart)
	return nil
}

func (f *File) writeAppend(records *rec.Records) error {
	if f.legacy {
		return fmt.Errorf("%w: rewrite with the current format to append", ErrLegacyHeader)
	}
	in := records.Descriptor()
	if f.delim != "" {
		in = in.StripByteOrder()
	}
	if !f.descr.Compatible(in) {
		return fmt.Errorf("%w: file has %v, records have %v",
			ErrSchemaMismatch, descriptorHeaderValue(f.descr), descriptorHeaderValue(in))
	}

	if _, err := f.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("sfile: seek to end: %w", err)
	}
	if err := f.writePayload(records); err != nil {
		return err
	}

	n := f.size + int64(records.Len())
	if err := rewriteSize(f.f, n); err != nil {
		return err
	}
	if _, err := f.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("sfile: seek: %w", err)
	}

	f.size = n
	f.hdr.Set(keySize, n)
	if !f.descr.HasFields() {
		f.shape = []int64{n}
		f.hdr.Set(keyShape, tuple{n})
	}
	f.log.Debug("records appended", "path", f.path, "added", records.Len(), "size", n)
	return nil
}

func (f *File) writePayload(records *rec.Records) error {
	rf, err := recfile.Open(f.f, records.Descriptor(), recfile.Config{
		Delim:      f.delim,
		Rows:       int64(records.Len()),
		PadNull:    f.padNull,
		IgnoreNull: f.ignoreNull,
	})
	if err != nil {
		return fmt.Errorf("sfile: %w", err)
	}
	if err := rf.Write(records); err != nil {
		return fmt.Errorf("sfile: write records: %w", err)
	}
	return nil
}

// shapeHeaderValue renders the _SHAPE entry for a simple array.
func shapeHeaderValue(records *rec.Records) any {
	if s := records.Shape(); s != nil {
		t := make(tuple, len(s))
		for i, d := range s {
			t[i] = d
		}
		return t
	}
	return tuple{int64(records.Len())}
}

// Close flushes and releases the stream. The handle goes inert; state comes
// back only through a fresh Open.
func (f *File) Close() error {
	if !f.open {
		return nil
	}
	f.open = false
	f.hdr = nil
	f.descr = nil
	f.size = 0
	f.dataStart = 0
	f.shape = nil
	f.legacy = false
	f.rs = nil

	if f.f == nil {
		return nil
	}
	var err error
	if f.mode != ModeRead {
		err = f.f.Sync()
	}
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	f.f = nil
	if err != nil {
		return fmt.Errorf("sfile: close %q: %w", f.path, err)
	}
	return nil
}

// Read opens path, reads records matching the selector arguments and closes
// the file again.
func Read(path string, args ...any) (*rec.Records, error) {
	f, err := Open(path, ModeRead)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Read(args...)
}

// ReadWithHeader is Read plus the decoded header.
func ReadWithHeader(path string, args ...any) (*rec.Records, *Header, error) {
	f, err := Open(path, ModeRead)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return f.ReadWithHeader(args...)
}

// ReadHeader opens path just long enough to decode the header.
func ReadHeader(path string) (*Header, error) {
	f, err := Open(path, ModeRead)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadHeader(), nil
}

// Write creates or truncates path and writes records with the extra header
// entries.
func Write(path string, records *rec.Records, extra map[string]any, opts ...Option) error {
	f, err := Open(path, ModeWrite, opts...)
	if err != nil {
		return err
	}
	if err := f.Write(records, extra); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Append extends path with records, creating it when missing.
func Append(path string, records *rec.Records, opts ...Option) error {
	f, err := Open(path, ModeAppend, opts...)
	if err != nil {
		return err
	}
	if err := f.Write(records, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
