// Package recfile reads and writes subsets of fixed-width records from a
// positioned stream without loading the whole payload.
//
// The engine serves two encodings: packed binary records, addressed by
// row*recordSize+fieldOffset arithmetic, and delimited text records, one
// line per record with fields joined by a separator. Callers position the
// stream at the first record before Open; all addressing is relative to
// that point.
package recfile

import (
	"bufio"
	"fmt"
	"io"

	"github.com/mbaird/sfile/pkg/rec"
)

// Stream is the access the engine needs. *os.File satisfies it; io.ReaderAt
// and io.Writer are asserted dynamically where an operation needs them.
type Stream interface {
	io.Reader
	io.Seeker
}

// Config controls one engine instance.
type Config struct {
	// Delim is the field separator for text records. Empty means packed
	// binary.
	Delim string

	// Rows is the total number of records in the stream.
	Rows int64

	// PadNull replaces NUL padding in string fields with spaces on text
	// writes.
	PadNull bool

	// IgnoreNull drops NUL padding from string fields on text writes. Rows
	// written this way do not read back with their original fixed width.
	IgnoreNull bool
}

// File is an open partial-record engine over one stream.
type File struct {
	s     Stream
	d     *rec.Descriptor
	cfg   Config
	base  int64
	binRA io.ReaderAt // non-nil when the stream supports random access
}

// Open binds the engine to a stream positioned at the first record.
func Open(s Stream, d *rec.Descriptor, cfg Config) (*File, error) {
	if cfg.Rows < 0 {
		return nil, fmt.Errorf("recfile: negative row count %d", cfg.Rows)
	}
	if cfg.Delim == "" && d.Size() == 0 {
		return nil, fmt.Errorf("recfile: zero-width binary record")
	}
	base, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("recfile: locate record start: %w", err)
	}
	f := &File{s: s, d: d, cfg: cfg, base: base}
	if ra, ok := s.(io.ReaderAt); ok {
		f.binRA = ra
	}
	return f, nil
}

// Read extracts the requested rows and fields. Nil rows means every row in
// order; nil fields means every field. Rows come back in the order
// requested.
func (f *File) Read(rows []int64, fields []string) (*rec.Records, error) {
	for _, row := range rows {
		if row < 0 || row >= f.cfg.Rows {
			return nil, fmt.Errorf("%w: %d of %d", rec.ErrRowRange, row, f.cfg.Rows)
		}
	}
	if f.cfg.Delim != "" {
		return f.readText(rows, fields)
	}
	return f.readBinary(rows, fields)
}

// Write appends records at the current stream position.
func (f *File) Write(records *rec.Records) error {
	w, ok := f.s.(io.Writer)
	if !ok {
		return fmt.Errorf("recfile: stream is not writable")
	}
	if f.cfg.Delim != "" {
		return writeText(w, records, f.cfg)
	}
	return writeFull(w, records.Bytes())
}

// fieldRun is a contiguous byte range of the source record copied to a
// contiguous range of the output record.
type fieldRun struct {
	srcOff int
	dstOff int
	size   int
}

// planRuns projects the requested fields and coalesces source ranges that
// are adjacent both in the record and in the output.
func planRuns(d *rec.Descriptor, fields []string) (*rec.Descriptor, []fieldRun, error) {
	if fields == nil {
		return d, []fieldRun{{srcOff: 0, dstOff: 0, size: d.Size()}}, nil
	}
	out, err := d.Project(fields)
	if err != nil {
		return nil, nil, err
	}
	var runs []fieldRun
	dst := 0
	for _, name := range fields {
		srcOff, size, _ := d.Offset(name)
		if n := len(runs); n > 0 && runs[n-1].srcOff+runs[n-1].size == srcOff {
			runs[n-1].size += size
		} else {
			runs = append(runs, fieldRun{srcOff: srcOff, dstOff: dst, size: size})
		}
		dst += size
	}
	return out, runs, nil
}

func (f *File) readBinary(rows []int64, fields []string) (*rec.Records, error) {
	outDescr, runs, err := planRuns(f.d, fields)
	if err != nil {
		return nil, err
	}

	recSize := f.d.Size()
	if rows == nil && fields == nil {
		// Whole payload in one read.
		buf := make([]byte, f.cfg.Rows*int64(recSize))
		if err := f.readAt(buf, f.base); err != nil {
			return nil, err
		}
		return rec.Wrap(f.d, buf)
	}

	nOut := int(f.cfg.Rows)
	if rows != nil {
		nOut = len(rows)
	}
	out := rec.NewRecords(outDescr, nOut)
	buf := out.Bytes()
	outSize := outDescr.Size()

	for i := 0; i < nOut; i++ {
		row := int64(i)
		if rows != nil {
			row = rows[i]
		}
		recBase := f.base + row*int64(recSize)
		dstBase := i * outSize
		for _, r := range runs {
			dst := buf[dstBase+r.dstOff : dstBase+r.dstOff+r.size]
			if err := f.readAt(dst, recBase+int64(r.srcOff)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// readAt fills dst from the absolute stream offset, via ReaderAt when the
// stream has one and seek+read otherwise.
func (f *File) readAt(dst []byte, off int64) error {
	if f.binRA != nil {
		if _, err := f.binRA.ReadAt(dst, off); err != nil {
			return fmt.Errorf("recfile: read %d bytes at %d: %w", len(dst), off, err)
		}
		return nil
	}
	if _, err := f.s.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("recfile: seek to %d: %w", off, err)
	}
	if _, err := io.ReadFull(f.s, dst); err != nil {
		return fmt.Errorf("recfile: read %d bytes at %d: %w", len(dst), off, err)
	}
	return nil
}

func (f *File) readText(rows []int64, fields []string) (*rec.Records, error) {
	outDescr := f.d
	if fields != nil {
		var err error
		outDescr, err = f.d.Project(fields)
		if err != nil {
			return nil, err
		}
	}

	// Row subsets still scan from the start: text records have no fixed
	// byte width to seek by.
	if _, err := f.s.Seek(f.base, io.SeekStart); err != nil {
		return nil, fmt.Errorf("recfile: seek to record start: %w", err)
	}

	want := make(map[int64][]int, len(rows))
	nOut := int(f.cfg.Rows)
	if rows != nil {
		nOut = len(rows)
		for i, row := range rows {
			want[row] = append(want[row], i)
		}
	}
	out := rec.NewRecords(outDescr, nOut)

	sc := bufio.NewScanner(f.s)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var row int64
	filled := 0
	for sc.Scan() {
		if row >= f.cfg.Rows {
			break
		}
		var dsts []int
		if rows == nil {
			dsts = []int{int(row)}
		} else if d, ok := want[row]; ok {
			dsts = d
		}
		if dsts != nil {
			if err := parseTextRecord(sc.Text(), f.d, outDescr, f.cfg.Delim, out, dsts); err != nil {
				return nil, fmt.Errorf("recfile: row %d: %w", row, err)
			}
			filled += len(dsts)
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("recfile: scan text records: %w", err)
	}
	if filled < nOut {
		return nil, fmt.Errorf("recfile: short text payload: %d of %d requested rows", filled, nOut)
	}
	return out, nil
}
