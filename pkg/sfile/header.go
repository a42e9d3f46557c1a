package sfile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mbaird/sfile/pkg/rec"
)

// Reserved header keys. These are derived from the data and managed by the
// library; caller-supplied entries must not shadow them.
const (
	keySize      = "_SIZE"
	keyNrows     = "_NROWS" // legacy spelling, read-only
	keyDtype     = "_DTYPE"
	keyDelim     = "_DELIM"
	keyShape     = "_SHAPE"
	keyHasFields = "_HAS_FIELDS"
)

// The size value is right-justified in a fixed 20-character field so the
// first line can be rewritten in place on append without moving any other
// byte. 20 characters hold any 64-bit count.
const (
	sizeLinePrefix = "SIZE = "
	sizeLineLen    = len(sizeLinePrefix) + 20 + 1
)

var reservedKeys = map[string]bool{
	strings.ToLower(keySize):      true,
	strings.ToLower(keyNrows):     true,
	strings.ToLower(keyDtype):     true,
	strings.ToLower(keyDelim):     true,
	strings.ToLower(keyShape):     true,
	strings.ToLower(keyHasFields): true,
}

// IsReservedKey reports whether key collides case-insensitively with a
// reserved header key.
func IsReservedKey(key string) bool {
	return reservedKeys[strings.ToLower(key)]
}

// Header is the keyword metadata block of an sfile. Key lookup is
// case-insensitive through a normalized table built once; the spelling of
// first use is kept for output.
type Header struct {
	order []string          // normalized keys, insertion order
	vals  map[string]any    // by normalized key
	names map[string]string // normalized key -> spelling
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{
		vals:  make(map[string]any),
		names: make(map[string]string),
	}
}

// Set stores an entry, replacing any entry whose key matches
// case-insensitively.
func (h *Header) Set(key string, v any) {
	norm := strings.ToLower(key)
	if _, ok := h.vals[norm]; !ok {
		h.order = append(h.order, norm)
		h.names[norm] = key
	}
	h.vals[norm] = v
}

// Get looks an entry up case-insensitively.
func (h *Header) Get(key string) (any, bool) {
	v, ok := h.vals[strings.ToLower(key)]
	return v, ok
}

// Delete removes an entry case-insensitively.
func (h *Header) Delete(key string) {
	norm := strings.ToLower(key)
	if _, ok := h.vals[norm]; !ok {
		return
	}
	delete(h.vals, norm)
	delete(h.names, norm)
	for i, k := range h.order {
		if k == norm {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Int64 reads an integer entry.
func (h *Header) Int64(key string) (int64, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// String reads a string entry.
func (h *Header) String(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Len returns the number of entries.
func (h *Header) Len() int { return len(h.order) }

// Keys returns entry keys, as first spelled, in insertion order.
func (h *Header) Keys() []string {
	keys := make([]string, len(h.order))
	for i, norm := range h.order {
		keys[i] = h.names[norm]
	}
	return keys
}

// Map copies the entries into a plain map keyed by the stored spellings.
func (h *Header) Map() map[string]any {
	m := make(map[string]any, len(h.order))
	for _, norm := range h.order {
		m[h.names[norm]] = h.vals[norm]
	}
	return m
}

// lineReader reads newline-terminated lines while counting consumed bytes,
// which is how the payload start offset is found.
type lineReader struct {
	br    *bufio.Reader
	count int64
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReader(r)}
}

func (lr *lineReader) readLine() (string, error) {
	line, err := lr.br.ReadString('\n')
	lr.count += int64(len(line))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// decodeHeader parses the header block from the start of a stream. It
// returns the header (with _SIZE injected), the byte offset of the first
// record and whether the file carries the legacy NROWS size line.
func decodeHeader(r io.Reader) (h *Header, dataStart int64, legacy bool, err error) {
	lr := newLineReader(r)

	first, err := lr.readLine()
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: missing size line: %v", ErrFormat, err)
	}
	parts := strings.Split(first, "=")
	if len(parts) != 2 {
		return nil, 0, false, fmt.Errorf("%w: first line must be %q", ErrFormat, "SIZE = <count>")
	}
	switch strings.ToUpper(strings.TrimSpace(parts[0])) {
	case "SIZE":
	case "NROWS":
		legacy = true
	default:
		return nil, 0, false, fmt.Errorf("%w: first line must be %q", ErrFormat, "SIZE = <count>")
	}
	size, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || size < 0 {
		return nil, 0, false, fmt.Errorf("%w: bad size value %q", ErrFormat, strings.TrimSpace(parts[1]))
	}

	var body []string
	for {
		line, err := lr.readLine()
		if err != nil {
			return nil, 0, false, fmt.Errorf("%w: missing END terminator", ErrFormat)
		}
		if strings.EqualFold(strings.TrimSpace(line), "END") {
			break
		}
		body = append(body, strings.TrimSpace(line))
	}

	blank, err := lr.readLine()
	if err != nil || strings.TrimSpace(blank) != "" {
		return nil, 0, false, fmt.Errorf("%w: END must be followed by a blank line", ErrFormat)
	}

	parsed, err := parseLiteral(strings.Join(body, " "))
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: header body: %v", ErrFormat, err)
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return nil, 0, false, fmt.Errorf("%w: header body is not a mapping", ErrFormat)
	}

	h = NewHeader()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, m[k])
	}
	h.Delete(keyNrows)
	h.Set(keySize, size)

	return h, lr.count, legacy, nil
}

// encodeHeader writes the full header block: size line, body mapping, END
// and the blank separator. The body excludes the size, which lives only on
// line 1.
func encodeHeader(w io.Writer, size int64, h *Header) error {
	if err := writeSizeLine(w, size); err != nil {
		return err
	}

	body := make(map[string]any, h.Len())
	for k, v := range h.Map() {
		norm := strings.ToLower(k)
		if norm == strings.ToLower(keySize) || norm == strings.ToLower(keyNrows) {
			continue
		}
		body[k] = v
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// One entry per line, continuation lines indented one space, the way
	// the legacy tool pretty-printed its headers.
	for i, k := range keys {
		var b strings.Builder
		if i == 0 {
			b.WriteByte('{')
		} else {
			b.WriteByte(' ')
		}
		quoteLiteral(&b, k)
		b.WriteString(": ")
		appendLiteral(&b, body[k])
		if i == len(keys)-1 {
			b.WriteByte('}')
		} else {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		if _, err := io.WriteString(w, "{}\n"); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "END\n\n")
	return err
}

func writeSizeLine(w io.Writer, size int64) error {
	line := fmt.Sprintf("%s%20d\n", sizeLinePrefix, size)
	if len(line) != sizeLineLen {
		return fmt.Errorf("%w: size %d does not fit the fixed-width size line", ErrFormat, size)
	}
	_, err := io.WriteString(w, line)
	return err
}

// rewriteSize patches the size line in place. It touches bytes
// [0, sizeLineLen) and nothing else; callers restore their own position.
// Only files written with the fixed-width size line may be patched; the
// caller screens out legacy headers first.
func rewriteSize(ws io.WriteSeeker, size int64) error {
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("sfile: seek to size line: %w", err)
	}
	return writeSizeLine(ws, size)
}

// descriptorHeaderValue renders a layout as its _DTYPE header value: a list
// of (name, tag) tuples for structured data, a bare tag string for simple
// arrays.
func descriptorHeaderValue(d *rec.Descriptor) any {
	if !d.HasFields() {
		return d.At(0).Tag.String()
	}
	out := make([]any, d.NumFields())
	for i, f := range d.Fields() {
		out[i] = tuple{f.Name, f.Tag.String()}
	}
	return out
}

// descriptorFromHeaderValue rebuilds a layout from a decoded _DTYPE value.
func descriptorFromHeaderValue(v any) (*rec.Descriptor, error) {
	switch x := v.(type) {
	case string:
		tag, err := rec.ParseTypeTag(x)
		if err != nil {
			return nil, fmt.Errorf("%w: _DTYPE: %v", ErrFormat, err)
		}
		return rec.Simple(tag), nil
	case []any:
		return descriptorFromEntries(x)
	case tuple:
		return descriptorFromEntries(x)
	}
	return nil, fmt.Errorf("%w: _DTYPE must be a tag string or a field list", ErrFormat)
}

func descriptorFromEntries(entries []any) (*rec.Descriptor, error) {
	fields := make([]rec.Field, 0, len(entries))
	for i, e := range entries {
		var parts []any
		switch t := e.(type) {
		case tuple:
			parts = t
		case []any:
			parts = t
		default:
			return nil, fmt.Errorf("%w: _DTYPE entry %d is not a (name, tag) pair", ErrFormat, i)
		}
		if len(parts) != 2 && len(parts) != 3 {
			return nil, fmt.Errorf("%w: _DTYPE entry %d is not a (name, tag) pair", ErrFormat, i)
		}
		name, ok := parts[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: _DTYPE entry %d has a non-string name", ErrFormat, i)
		}
		tagStr, ok := parts[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: _DTYPE entry %d has a non-string tag", ErrFormat, i)
		}
		tag, err := rec.ParseTypeTag(tagStr)
		if err != nil {
			return nil, fmt.Errorf("%w: _DTYPE field %q: %v", ErrFormat, name, err)
		}
		if len(parts) == 3 {
			// explicit sub-shape entry: fold the dimensions into the
			// repeat count
			n, err := shapeProduct(parts[2])
			if err != nil {
				return nil, fmt.Errorf("%w: _DTYPE field %q shape: %v", ErrFormat, name, err)
			}
			tag.Repeat *= int(n)
		}
		fields = append(fields, rec.Field{Name: name, Tag: tag})
	}
	d, err := rec.New(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: _DTYPE: %v", ErrFormat, err)
	}
	return d, nil
}

func shapeProduct(v any) (int64, error) {
	dims, err := shapeFromHeaderValue(v)
	if err != nil {
		return 0, err
	}
	prod := int64(1)
	for _, d := range dims {
		prod *= d
	}
	return prod, nil
}

// shapeFromHeaderValue rebuilds a _SHAPE hint from a decoded header value.
func shapeFromHeaderValue(v any) ([]int64, error) {
	asInt := func(e any) (int64, bool) {
		switch n := e.(type) {
		case int64:
			return n, true
		case int:
			return int64(n), true
		}
		return 0, false
	}
	if n, ok := asInt(v); ok {
		return []int64{n}, nil
	}
	var elems []any
	switch x := v.(type) {
	case tuple:
		elems = x
	case []any:
		elems = x
	default:
		return nil, fmt.Errorf("not a dimension sequence")
	}
	dims := make([]int64, 0, len(elems))
	for _, e := range elems {
		n, ok := asInt(e)
		if !ok || n < 0 {
			return nil, fmt.Errorf("not a dimension sequence")
		}
		dims = append(dims, n)
	}
	return dims, nil
}
