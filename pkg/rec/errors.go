package rec

import "errors"

var (
	ErrUnknownField = errors.New("rec: unknown field")
	ErrRowRange     = errors.New("rec: row index out of range")
	ErrValueType    = errors.New("rec: value type does not match field")
	ErrShortBuffer  = errors.New("rec: buffer is not a whole number of records")
)
