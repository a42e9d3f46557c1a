package sfile

import (
	"fmt"

	"github.com/mbaird/sfile/pkg/rec"
)

// Subset is a lazy view over a row/column selection. Construction validates
// the selection against the open file; no payload byte moves until Read.
type Subset struct {
	f    *File
	rows []int64
	cols []string
}

// Subset resolves selector arguments the way Read does and returns a view
// bound to them. Unknown columns and out-of-range rows fail here, not at
// materialization.
func (f *File) Subset(args ...any) (*Subset, error) {
	if !f.open {
		return nil, ErrClosed
	}
	if f.hdr == nil {
		return nil, fmt.Errorf("%w: nothing written yet", ErrNotFound)
	}
	if !f.descr.HasFields() {
		return nil, fmt.Errorf("%w: file has no named fields", ErrUnsupported)
	}
	rows, cols, err := resolveSelector(f.size, f.descr, args...)
	if err != nil {
		return nil, err
	}
	return &Subset{f: f, rows: rows, cols: cols}, nil
}

// Rows returns the selected row indices, nil meaning every row.
func (s *Subset) Rows() []int64 { return s.rows }

// Columns returns the selected field names, nil meaning every field.
func (s *Subset) Columns() []string { return s.cols }

// Len is the number of rows the view covers.
func (s *Subset) Len() int64 {
	if s.rows == nil {
		return s.f.size
	}
	return int64(len(s.rows))
}

// Descriptor is the layout of the records Read will return.
func (s *Subset) Descriptor() (*rec.Descriptor, error) {
	if s.cols == nil {
		return s.f.descr, nil
	}
	return s.f.descr.Project(s.cols)
}

// Read materializes the view. The selection was validated at construction,
// but the file may have shrunk state through Close since; that surfaces as
// ErrClosed.
func (s *Subset) Read() (*rec.Records, error) {
	if !s.f.open {
		return nil, ErrClosed
	}
	return s.f.readRecords(s.rows, s.cols)
}
