package rec

import (
	"bytes"
	"fmt"
	"math"
)

// Records is a collection of fixed-width records packed into a flat buffer,
// exactly as they appear in an sfile payload. Multi-byte values are encoded
// per field tag; access goes through typed getters and setters.
type Records struct {
	d     *Descriptor
	buf   []byte
	n     int
	shape []int64
}

// NewRecords allocates n zeroed records with the given layout.
func NewRecords(d *Descriptor, n int) *Records {
	return &Records{d: d, buf: make([]byte, n*d.Size()), n: n}
}

// Wrap interprets buf as packed records without copying. The buffer length
// must be a whole number of records.
func Wrap(d *Descriptor, buf []byte) (*Records, error) {
	if d.Size() == 0 || len(buf)%d.Size() != 0 {
		return nil, fmt.Errorf("%w: %d bytes with %d-byte records", ErrShortBuffer, len(buf), d.Size())
	}
	return &Records{d: d, buf: buf, n: len(buf) / d.Size()}, nil
}

// Len returns the number of records.
func (r *Records) Len() int { return r.n }

// Descriptor returns the record layout.
func (r *Records) Descriptor() *Descriptor { return r.d }

// Bytes returns the packed payload. The slice aliases internal storage.
func (r *Records) Bytes() []byte { return r.buf }

// SetShape records a multi-dimensional shape hint for a simple array. The
// hint is kept only when the dimension product equals Len; otherwise the
// collection stays flat. A mismatched hint is not an error.
func (r *Records) SetShape(dims ...int64) {
	if len(dims) == 0 {
		r.shape = nil
		return
	}
	prod := int64(1)
	for _, d := range dims {
		prod *= d
	}
	if prod == int64(r.n) {
		r.shape = append([]int64(nil), dims...)
	}
}

// Shape returns the reshape hint, or nil when the collection is flat.
func (r *Records) Shape() []int64 { return r.shape }

func (r *Records) fieldSlice(row int, fieldIdx int) ([]byte, error) {
	if row < 0 || row >= r.n {
		return nil, fmt.Errorf("%w: %d of %d", ErrRowRange, row, r.n)
	}
	off := row*r.d.Size() + r.d.offsets[fieldIdx]
	return r.buf[off : off+r.d.fields[fieldIdx].Tag.Size()], nil
}

func (r *Records) lookup(name string) (int, error) {
	i := r.d.IndexOf(name)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return i, nil
}

// Value reads one field of one record. Scalars come back as float64, int64,
// uint64 or string depending on the field kind; fields with a repeat count
// come back as the corresponding slice type. Simple arrays use the empty
// field name.
func (r *Records) Value(row int, name string) (any, error) {
	i, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	b, err := r.fieldSlice(row, i)
	if err != nil {
		return nil, err
	}
	tag := r.d.fields[i].Tag
	if tag.Repeat == 1 {
		return decodeScalar(tag, b), nil
	}
	switch tag.Kind {
	case KindFloat:
		out := make([]float64, tag.Repeat)
		for j := range out {
			out[j] = decodeScalar(tag, b[j*tag.Width:]).(float64)
		}
		return out, nil
	case KindInt:
		out := make([]int64, tag.Repeat)
		for j := range out {
			out[j] = decodeScalar(tag, b[j*tag.Width:]).(int64)
		}
		return out, nil
	case KindUint:
		out := make([]uint64, tag.Repeat)
		for j := range out {
			out[j] = decodeScalar(tag, b[j*tag.Width:]).(uint64)
		}
		return out, nil
	default:
		out := make([]string, tag.Repeat)
		for j := range out {
			out[j] = decodeScalar(tag, b[j*tag.Width:]).(string)
		}
		return out, nil
	}
}

// Set writes one field of one record. Values are coerced across Go numeric
// types where the conversion is exact in kind (ints to integer fields,
// floats or ints to float fields, strings no longer than the field width).
func (r *Records) Set(row int, name string, v any) error {
	i, err := r.lookup(name)
	if err != nil {
		return err
	}
	b, err := r.fieldSlice(row, i)
	if err != nil {
		return err
	}
	tag := r.d.fields[i].Tag
	if tag.Repeat == 1 {
		return encodeScalar(tag, b, v)
	}
	return encodeSlice(tag, b, v)
}

// Float64 reads a scalar float field.
func (r *Records) Float64(row int, name string) (float64, error) {
	v, err := r.Value(row, name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is not a scalar float", ErrValueType, name)
	}
	return f, nil
}

// Int64 reads a scalar integer field.
func (r *Records) Int64(row int, name string) (int64, error) {
	v, err := r.Value(row, name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: field %q value overflows int64", ErrValueType, name)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("%w: field %q is not a scalar integer", ErrValueType, name)
}

// String reads a scalar string field, with trailing NUL padding removed.
func (r *Records) String(row int, name string) (string, error) {
	v, err := r.Value(row, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrValueType, name)
	}
	return s, nil
}

// Append adds one record, taking one value per declared field in order.
func (r *Records) Append(vals ...any) error {
	if len(vals) != len(r.d.fields) {
		return fmt.Errorf("%w: %d values for %d fields", ErrValueType, len(vals), len(r.d.fields))
	}
	r.buf = append(r.buf, make([]byte, r.d.Size())...)
	r.n++
	for i, v := range vals {
		if err := r.Set(r.n-1, r.d.fields[i].Name, v); err != nil {
			r.buf = r.buf[:len(r.buf)-r.d.Size()]
			r.n--
			return err
		}
	}
	return nil
}

// AppendRecords concatenates other onto r. Layouts must be compatible.
func (r *Records) AppendRecords(other *Records) error {
	if !r.d.Compatible(other.d) {
		return fmt.Errorf("%w: layouts differ", ErrValueType)
	}
	r.buf = append(r.buf, other.buf...)
	r.n += other.n
	return nil
}

// Select copies a row and column subset into fresh Records. Nil rows keeps
// every row; nil cols keeps every column. Rows are emitted in the order
// requested.
func (r *Records) Select(rows []int64, cols []string) (*Records, error) {
	d := r.d
	if cols != nil {
		var err error
		d, err = r.d.Project(cols)
		if err != nil {
			return nil, err
		}
	}

	nOut := r.n
	if rows != nil {
		nOut = len(rows)
	}
	out := NewRecords(d, nOut)

	for outRow := 0; outRow < nOut; outRow++ {
		srcRow := outRow
		if rows != nil {
			if rows[outRow] < 0 || rows[outRow] >= int64(r.n) {
				return nil, fmt.Errorf("%w: %d of %d", ErrRowRange, rows[outRow], r.n)
			}
			srcRow = int(rows[outRow])
		}
		srcBase := srcRow * r.d.Size()
		dstBase := outRow * d.Size()
		for i, f := range d.fields {
			srcOff, size, _ := r.d.Offset(f.Name)
			copy(out.buf[dstBase+d.offsets[i]:dstBase+d.offsets[i]+size],
				r.buf[srcBase+srcOff:srcBase+srcOff+size])
		}
	}
	return out, nil
}

// Equal reports whether two collections hold identical layouts and bytes.
func (r *Records) Equal(o *Records) bool {
	if o == nil || r.n != o.n || !r.d.Compatible(o.d) {
		return false
	}
	return bytes.Equal(r.buf, o.buf)
}
