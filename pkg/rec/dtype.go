// Package rec describes fixed-width record layouts and holds record data.
//
// A Descriptor is an ordered list of named, typed fields. Records packs rows
// of such fields into a flat byte buffer with no padding, which is exactly
// the on-disk payload layout of an sfile container.
package rec

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the primitive class of a field.
type Kind byte

const (
	KindFloat  Kind = 'f'
	KindInt    Kind = 'i'
	KindUint   Kind = 'u'
	KindString Kind = 'S'
)

// TypeTag is a parsed numpy-style type string such as "<f8", "i4", "S20" or
// "2i4". The optional leading byte-order character is kept verbatim so tags
// round-trip through headers unchanged.
type TypeTag struct {
	Order  byte // '<', '>', '=', '|' or 0 when absent
	Repeat int  // element count per record, 1 for scalars
	Kind   Kind
	Width  int // bytes per element
}

// ParseTypeTag parses a tag string. Accepted grammar:
//
//	[order][repeat]kind width
//
// where order is one of < > = |, repeat is a decimal element count and
// kind/width are one of f4 f8, i1 i2 i4 i8, u1 u2 u4 u8, or S<n>.
func ParseTypeTag(s string) (TypeTag, error) {
	orig := s
	var t TypeTag
	t.Repeat = 1

	if s == "" {
		return t, fmt.Errorf("empty type tag")
	}
	switch s[0] {
	case '<', '>', '=', '|':
		t.Order = s[0]
		s = s[1:]
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil || n < 1 {
			return t, fmt.Errorf("bad repeat count in type tag %q", orig)
		}
		t.Repeat = n
		s = s[i:]
	}

	if s == "" {
		return t, fmt.Errorf("missing kind in type tag %q", orig)
	}
	kind := s[0]
	if kind == 's' {
		kind = 'S'
	}
	t.Kind = Kind(kind)
	s = s[1:]

	w, err := strconv.Atoi(s)
	if err != nil || w < 1 {
		return t, fmt.Errorf("bad width in type tag %q", orig)
	}
	t.Width = w

	switch t.Kind {
	case KindFloat:
		if w != 4 && w != 8 {
			return t, fmt.Errorf("unsupported float width in type tag %q", orig)
		}
	case KindInt, KindUint:
		if w != 1 && w != 2 && w != 4 && w != 8 {
			return t, fmt.Errorf("unsupported integer width in type tag %q", orig)
		}
	case KindString:
		// any positive width
	default:
		return t, fmt.Errorf("unsupported kind %q in type tag %q", string(kind), orig)
	}
	return t, nil
}

// String renders the canonical tag form.
func (t TypeTag) String() string {
	var b strings.Builder
	if t.Order != 0 {
		b.WriteByte(t.Order)
	}
	if t.Repeat > 1 {
		b.WriteString(strconv.Itoa(t.Repeat))
	}
	b.WriteByte(byte(t.Kind))
	b.WriteString(strconv.Itoa(t.Width))
	return b.String()
}

// Size is the total byte width of the field: Repeat * Width.
func (t TypeTag) Size() int { return t.Repeat * t.Width }

// StripOrder returns the tag without its byte-order character. Delimited
// text records have no intrinsic byte order.
func (t TypeTag) StripOrder() TypeTag {
	t.Order = 0
	return t
}

// ByteOrder returns the encoding order for the tag. Tags without an explicit
// order, and native-order tags, are treated as little-endian.
func (t TypeTag) ByteOrder() binary.ByteOrder {
	if t.Order == '>' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// sameLayout reports whether two tags describe byte-identical fields.
func (t TypeTag) sameLayout(o TypeTag) bool {
	return t.Kind == o.Kind &&
		t.Width == o.Width &&
		t.Repeat == o.Repeat &&
		t.ByteOrder() == o.ByteOrder()
}

// Field is one named entry of a record layout.
type Field struct {
	Name string
	Tag  TypeTag
}

// Descriptor is an ordered, fixed-width record layout. The zero value is not
// usable; build one with New, Simple or ParseFields.
type Descriptor struct {
	fields  []Field
	byName  map[string]int
	offsets []int
	size    int
	simple  bool
}

// New builds a structured descriptor. Field names must be unique and
// non-empty.
func New(fields []Field) (*Descriptor, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("descriptor needs at least one field")
	}
	d := &Descriptor{
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	copy(d.fields, fields)
	for i, f := range d.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has an empty name", i)
		}
		if _, dup := d.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field name %q", f.Name)
		}
		d.byName[f.Name] = i
	}
	d.finish()
	return d, nil
}

// Simple builds a descriptor for a fieldless array of the given element type.
func Simple(tag TypeTag) *Descriptor {
	d := &Descriptor{
		fields: []Field{{Name: "", Tag: tag}},
		byName: map[string]int{"": 0},
		simple: true,
	}
	d.finish()
	return d
}

// ParseFields builds a structured descriptor from (name, tag string) pairs.
func ParseFields(pairs ...[2]string) (*Descriptor, error) {
	fields := make([]Field, 0, len(pairs))
	for _, p := range pairs {
		tag, err := ParseTypeTag(p[1])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", p[0], err)
		}
		fields = append(fields, Field{Name: p[0], Tag: tag})
	}
	return New(fields)
}

func (d *Descriptor) finish() {
	d.offsets = make([]int, len(d.fields))
	off := 0
	for i, f := range d.fields {
		d.offsets[i] = off
		off += f.Tag.Size()
	}
	d.size = off
}

// HasFields reports whether this is a structured layout rather than a
// simple (fieldless) array.
func (d *Descriptor) HasFields() bool { return !d.simple }

// NumFields returns the number of declared fields.
func (d *Descriptor) NumFields() int { return len(d.fields) }

// Fields returns the declared fields in order. The slice must not be
// modified.
func (d *Descriptor) Fields() []Field { return d.fields }

// Names returns the field names in declared order.
func (d *Descriptor) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// At returns the i-th field.
func (d *Descriptor) At(i int) Field { return d.fields[i] }

// IndexOf returns the position of the named field, or -1.
func (d *Descriptor) IndexOf(name string) int {
	i, ok := d.byName[name]
	if !ok {
		return -1
	}
	return i
}

// Offset returns the byte offset and size of the named field within a packed
// record.
func (d *Descriptor) Offset(name string) (offset, size int, ok bool) {
	i, found := d.byName[name]
	if !found {
		return 0, 0, false
	}
	return d.offsets[i], d.fields[i].Tag.Size(), true
}

// Size is the packed byte width of one record.
func (d *Descriptor) Size() int { return d.size }

// StripByteOrder returns a copy of the descriptor with the byte-order
// character removed from every tag.
func (d *Descriptor) StripByteOrder() *Descriptor {
	fields := make([]Field, len(d.fields))
	for i, f := range d.fields {
		f.Tag = f.Tag.StripOrder()
		fields[i] = f
	}
	if d.simple {
		return Simple(fields[0].Tag)
	}
	nd, _ := New(fields)
	return nd
}

// Compatible reports whether records laid out by o can be appended to data
// laid out by d: same names in the same order with byte-identical fields.
func (d *Descriptor) Compatible(o *Descriptor) bool {
	if o == nil || len(d.fields) != len(o.fields) || d.simple != o.simple {
		return false
	}
	for i := range d.fields {
		if d.fields[i].Name != o.fields[i].Name {
			return false
		}
		if !d.fields[i].Tag.sameLayout(o.fields[i].Tag) {
			return false
		}
	}
	return true
}

// Project returns a descriptor holding only the named fields, packed in the
// given order.
func (d *Descriptor) Project(names []string) (*Descriptor, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		i, ok := d.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		fields = append(fields, d.fields[i])
	}
	return New(fields)
}
