package sfile

import (
	"fmt"

	"github.com/mbaird/sfile/pkg/rec"
)

// Slice selects a contiguous run of rows, [Start, Stop). A Step below 1 is
// treated as 1. Bounds are clamped into [0, size]; Stop past the end means
// "through the last row", Stop below Start selects nothing.
type Slice struct {
	Start int64
	Stop  int64
	Step  int64
}

// Span returns a Slice covering [start, stop).
func Span(start, stop int64) Slice {
	return Slice{Start: start, Stop: stop, Step: 1}
}

// Rows expands the slice against a file of the given size into explicit
// ascending row indices.
func (sl Slice) Rows(size int64) []int64 {
	return sl.expand(size)
}

func (sl Slice) expand(size int64) []int64 {
	start, stop := sl.Start, sl.Stop
	step := sl.Step
	if step < 1 {
		step = 1
	}
	if start < 0 {
		start = 0
	}
	if start > size {
		start = size
	}
	if stop < 0 {
		stop = 0
	}
	if stop > size {
		stop = size
	}
	if stop <= start {
		return []int64{}
	}
	rows := make([]int64, 0, (stop-start+step-1)/step)
	for r := start; r < stop; r += step {
		rows = append(rows, r)
	}
	return rows
}

// Rows is an explicitly tagged row-index selector.
type Rows []int64

// Columns is an explicitly tagged column selector. Elements are field names
// (string) or field positions (int).
type Columns []any

type selKind int

const (
	selNone selKind = iota
	selRows
	selCols
)

// classify maps one selector argument onto the row or column axis. The
// tag is decided by type alone; values are validated later against the
// open file.
func classify(arg any, size int64) (selKind, []int64, []any, error) {
	switch v := arg.(type) {
	case nil:
		return selNone, nil, nil, nil
	case string:
		return selCols, nil, []any{v}, nil
	case []string:
		cols := make([]any, len(v))
		for i, s := range v {
			cols[i] = s
		}
		return selCols, nil, cols, nil
	case Columns:
		return selCols, nil, []any(v), nil
	case Slice:
		return selRows, v.expand(size), nil, nil
	case Rows:
		return selRows, []int64(v), nil, nil
	case int:
		return selRows, []int64{int64(v)}, nil, nil
	case int64:
		return selRows, []int64{v}, nil, nil
	case []int:
		rows := make([]int64, len(v))
		for i, r := range v {
			rows[i] = int64(r)
		}
		return selRows, rows, nil, nil
	case []int64:
		return selRows, append([]int64(nil), v...), nil, nil
	case []any:
		if len(v) == 0 {
			return selRows, []int64{}, nil, nil
		}
		if _, ok := v[0].(string); ok {
			return selCols, nil, v, nil
		}
		rows := make([]int64, len(v))
		for i, e := range v {
			switch r := e.(type) {
			case int:
				rows[i] = int64(r)
			case int64:
				rows[i] = r
			default:
				return selNone, nil, nil, fmt.Errorf("%w: element %d has type %T, want an integer row index", ErrBadSelector, i, e)
			}
		}
		return selRows, rows, nil, nil
	}
	return selNone, nil, nil, fmt.Errorf("%w: unsupported selector type %T", ErrBadSelector, arg)
}

// resolveSelector canonicalizes up to two selector arguments into a
// (rows, columns) pair. nil on an axis means "all". When two arguments land
// on the same axis the later one wins. Row indices are range-checked against
// size and column references are resolved against the layout up front, so a
// bad selector fails before any payload I/O.
func resolveSelector(size int64, d *rec.Descriptor, args ...any) ([]int64, []string, error) {
	if len(args) > 2 {
		return nil, nil, fmt.Errorf("%w: at most two selector arguments, got %d", ErrBadSelector, len(args))
	}

	var (
		rows    []int64
		cols    []any
		gotRows bool
		gotCols bool
	)
	for _, arg := range args {
		kind, r, c, err := classify(arg, size)
		if err != nil {
			return nil, nil, err
		}
		switch kind {
		case selRows:
			rows, gotRows = r, true
		case selCols:
			cols, gotCols = c, true
		}
	}

	if gotRows {
		for _, r := range rows {
			if r < 0 || r >= size {
				return nil, nil, fmt.Errorf("%w: row %d outside [0, %d)", ErrRowRange, r, size)
			}
		}
	} else {
		rows = nil
	}

	var names []string
	if gotCols {
		names = make([]string, len(cols))
		for i, c := range cols {
			switch v := c.(type) {
			case string:
				if d == nil || d.IndexOf(v) < 0 {
					return nil, nil, fmt.Errorf("%w: %q", ErrBadColumn, v)
				}
				names[i] = v
			case int:
				if d == nil || v < 0 || v >= d.NumFields() {
					return nil, nil, fmt.Errorf("%w: field index %d", ErrBadColumn, v)
				}
				names[i] = d.At(v).Name
			case int64:
				if d == nil || v < 0 || v >= int64(d.NumFields()) {
					return nil, nil, fmt.Errorf("%w: field index %d", ErrBadColumn, v)
				}
				names[i] = d.At(int(v)).Name
			default:
				return nil, nil, fmt.Errorf("%w: column selector element has type %T", ErrBadSelector, c)
			}
		}
	}

	return rows, names, nil
}
