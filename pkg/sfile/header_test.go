package sfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mbaird/sfile/pkg/rec"
)

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	h.Set("Units", "deg")
	if v, ok := h.Get("UNITS"); !ok || v != "deg" {
		t.Errorf("Get(UNITS) = %v, %v", v, ok)
	}
	if v, ok := h.Get("units"); !ok || v != "deg" {
		t.Errorf("Get(units) = %v, %v", v, ok)
	}
	// later Set under a different spelling replaces, not duplicates
	h.Set("UNITS", "rad")
	if h.Len() != 1 {
		t.Fatalf("Len = %d", h.Len())
	}
	if v, _ := h.Get("units"); v != "rad" {
		t.Errorf("after re-Set: %v", v)
	}
	// first spelling survives
	if keys := h.Keys(); len(keys) != 1 || keys[0] != "Units" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestIsReservedKey(t *testing.T) {
	t.Parallel()

	for _, k := range []string{"_SIZE", "_size", "_Dtype", "_DELIM", "_shape", "_has_fields", "_NROWS"} {
		if !IsReservedKey(k) {
			t.Errorf("IsReservedKey(%q) = false", k)
		}
	}
	if IsReservedKey("units") {
		t.Error("plain key reported reserved")
	}
}

func TestHeaderEncodeDecode(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	h.Set("_DTYPE", []any{tuple{"ra", "<f8"}, tuple{"id", "<i4"}})
	h.Set("_HAS_FIELDS", true)
	h.Set("units", "deg")

	var buf bytes.Buffer
	if err := encodeHeader(&buf, 31, h); err != nil {
		t.Fatalf("encodeHeader: %v", err)
	}

	text := buf.String()
	first, _, _ := strings.Cut(text, "\n")
	if len(first)+1 != sizeLineLen {
		t.Errorf("size line is %d bytes, want %d: %q", len(first)+1, sizeLineLen, first)
	}
	if !strings.HasPrefix(first, "SIZE = ") || !strings.HasSuffix(first, "31") {
		t.Errorf("size line = %q", first)
	}
	if !strings.HasSuffix(text, "END\n\n") {
		t.Errorf("missing END terminator: %q", text)
	}

	got, dataStart, legacy, err := decodeHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if legacy {
		t.Error("fresh header reported legacy")
	}
	if dataStart != int64(buf.Len()) {
		t.Errorf("dataStart = %d, want %d", dataStart, buf.Len())
	}
	if size, _ := got.Int64("_SIZE"); size != 31 {
		t.Errorf("_SIZE = %d", size)
	}
	if v, _ := got.String("units"); v != "deg" {
		t.Errorf("units = %q", v)
	}
	if hf, ok := got.Get("_HAS_FIELDS"); !ok || hf != true {
		t.Errorf("_HAS_FIELDS = %v, %v", hf, ok)
	}
}

func TestDecodeHeaderLegacy(t *testing.T) {
	t.Parallel()

	text := "NROWS = 12\n{'_DTYPE': [('x', '<f8')]}\nEND\n\n"
	h, dataStart, legacy, err := decodeHeader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if !legacy {
		t.Error("NROWS header not flagged legacy")
	}
	if size, _ := h.Int64("_SIZE"); size != 12 {
		t.Errorf("_SIZE = %d", size)
	}
	if dataStart != int64(len(text)) {
		t.Errorf("dataStart = %d, want %d", dataStart, len(text))
	}
}

func TestDecodeHeaderMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
	}{
		{"no equals", "SIZE 10\n{}\nEND\n\n"},
		{"bad key", "ROWS = 10\n{}\nEND\n\n"},
		{"bad count", "SIZE = ten\n{}\nEND\n\n"},
		{"negative count", "SIZE = -1\n{}\nEND\n\n"},
		{"missing end", "SIZE = 10\n{}\n"},
		{"missing blank line", "SIZE = 10\n{}\nEND\n"},
		{"body not mapping", "SIZE = 10\n[1, 2]\nEND\n\n"},
		{"body not literal", "SIZE = 10\nwhatever\nEND\n\n"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, _, err := decodeHeader(strings.NewReader(tc.text)); !errors.Is(err, ErrFormat) {
				t.Errorf("decodeHeader(%q) = %v, want ErrFormat", tc.text, err)
			}
		})
	}
}

func TestDecodeHeaderMultiLineBody(t *testing.T) {
	t.Parallel()

	text := "SIZE =                    5\n" +
		"{'_DTYPE': [('ra', '<f8'),\n" +
		"            ('dec', '<f8')],\n" +
		" '_HAS_FIELDS': True}\n" +
		"END\n\n"
	h, _, _, err := decodeHeader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	d, err := descriptorFromHeaderValue(mustGet(t, h, "_DTYPE"))
	if err != nil {
		t.Fatalf("descriptorFromHeaderValue: %v", err)
	}
	if d.NumFields() != 2 || d.At(1).Name != "dec" {
		t.Errorf("fields = %v", d.Names())
	}
}

func mustGet(t *testing.T, h *Header, key string) any {
	t.Helper()
	v, ok := h.Get(key)
	if !ok {
		t.Fatalf("header missing %q", key)
	}
	return v
}

func TestRewriteSizeKeepsLineWidth(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	if err := writeSizeLine(&a, 0); err != nil {
		t.Fatalf("writeSizeLine: %v", err)
	}
	if err := writeSizeLine(&b, 1<<40); err != nil {
		t.Fatalf("writeSizeLine: %v", err)
	}
	if a.Len() != b.Len() || a.Len() != sizeLineLen {
		t.Errorf("line widths differ: %d vs %d", a.Len(), b.Len())
	}
}

func TestDescriptorHeaderValueRoundTrip(t *testing.T) {
	t.Parallel()

	d, err := rec.ParseFields([2]string{"ra", "<f8"}, [2]string{"flux", "<3f4"}, [2]string{"name", "S10"})
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	v := descriptorHeaderValue(d)
	text := formatLiteral(v)
	parsed, err := parseLiteral(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	back, err := descriptorFromHeaderValue(parsed)
	if err != nil {
		t.Fatalf("descriptorFromHeaderValue: %v", err)
	}
	if !d.Compatible(back) {
		t.Errorf("round trip changed layout: %q", text)
	}

	// simple arrays reduce to the bare tag string
	tag, _ := rec.ParseTypeTag("<f4")
	sv := descriptorHeaderValue(rec.Simple(tag))
	if sv != "<f4" {
		t.Errorf("simple header value = %v", sv)
	}
}

func TestDescriptorFromHeaderValueSubShape(t *testing.T) {
	t.Parallel()

	// an explicit (name, tag, shape) triple folds the shape into the repeat
	v, err := parseLiteral("[('flux', '<f4', (2, 3))]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, err := descriptorFromHeaderValue(v)
	if err != nil {
		t.Fatalf("descriptorFromHeaderValue: %v", err)
	}
	if got := d.At(0).Tag.Repeat; got != 6 {
		t.Errorf("repeat = %d, want 6", got)
	}
}
