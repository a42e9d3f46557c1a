package sfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mbaird/sfile/pkg/rec"
)

func catalogDescriptor(t *testing.T) *rec.Descriptor {
	t.Helper()
	d, err := rec.ParseFields([2]string{"ra", "<f8"}, [2]string{"dec", "<f8"}, [2]string{"id", "<i4"})
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	return d
}

func catalogRecords(t *testing.T, n int) *rec.Records {
	t.Helper()
	r := rec.NewRecords(catalogDescriptor(t), n)
	for i := 0; i < n; i++ {
		r.Set(i, "ra", float64(i)*3.6)
		r.Set(i, "dec", 45.0-float64(i))
		r.Set(i, "id", int64(i))
	}
	return r
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.rec")
	want := catalogRecords(t, 10)

	if err := Write(path, want, map[string]any{"units": "deg"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, hdr, err := ReadWithHeader(path)
	if err != nil {
		t.Fatalf("ReadWithHeader: %v", err)
	}
	if !got.Equal(want) {
		t.Error("read back differs from written")
	}
	if size, _ := hdr.Int64("_SIZE"); size != 10 {
		t.Errorf("_SIZE = %d", size)
	}
	if units, _ := hdr.String("units"); units != "deg" {
		t.Errorf("units = %q", units)
	}
	if hf, _ := hdr.Get("_HAS_FIELDS"); hf != true {
		t.Errorf("_HAS_FIELDS = %v", hf)
	}
}

func TestAppendPatchesSizeInPlace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "grow.rec")
	d, err := rec.ParseFields([2]string{"fcol", "<f4"}, [2]string{"icol", "<i4"})
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}

	first := rec.NewRecords(d, 2)
	first.Set(0, "fcol", 1.5)
	first.Set(0, "icol", 3)
	first.Set(1, "fcol", 2.5)
	first.Set(1, "icol", 5)
	if err := Write(path, first, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	extraRow := rec.NewRecords(d, 0)
	if err := extraRow.Append(9.9, 7); err != nil {
		t.Fatalf("Append record: %v", err)
	}
	if err := Append(path, extraRow); err != nil {
		t.Fatalf("Append: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// only the digits of the size line and the appended payload change
	if len(after) != len(before)+d.Size() {
		t.Fatalf("file grew by %d bytes, want %d", len(after)-len(before), d.Size())
	}
	if !bytes.Equal(after[sizeLineLen:len(before)], before[sizeLineLen:]) {
		t.Error("append disturbed bytes outside the size line")
	}

	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if size, _ := hdr.Int64("_SIZE"); size != 3 {
		t.Errorf("_SIZE = %d, want 3", size)
	}

	got, err := Read(path, Rows{2})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("Len = %d", got.Len())
	}
	if f, _ := got.Float64(0, "fcol"); f != float64(float32(9.9)) {
		t.Errorf("fcol = %v", f)
	}
	if n, _ := got.Int64(0, "icol"); n != 7 {
		t.Errorf("icol = %d", n)
	}
}

func TestPartialRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.rec")
	src := catalogRecords(t, 100)
	if err := Write(path, src, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path, []int64{10, 20, 30}, []string{"ra", "dec"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want, err := src.Select([]int64{10, 20, 30}, []string{"ra", "dec"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !got.Equal(want) {
		t.Error("partial read differs from in-memory select")
	}
	if got.Descriptor().NumFields() != 2 {
		t.Errorf("fields = %v", got.Descriptor().Names())
	}
}

func TestSelectorReadForms(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "forms.rec")
	src := catalogRecords(t, 20)
	if err := Write(path, src, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	one, err := f.Read(7)
	if err != nil {
		t.Fatalf("Read(7): %v", err)
	}
	if one.Len() != 1 {
		t.Errorf("Read(7) rows = %d", one.Len())
	}
	if id, _ := one.Int64(0, "id"); id != 7 {
		t.Errorf("Read(7) id = %d", id)
	}

	col, err := f.Read("ra")
	if err != nil {
		t.Fatalf("Read(ra): %v", err)
	}
	if col.Len() != 20 || col.Descriptor().NumFields() != 1 {
		t.Errorf("Read(ra): %d rows, %v fields", col.Len(), col.Descriptor().Names())
	}

	span, err := f.Read(Span(2, 5))
	if err != nil {
		t.Fatalf("Read(span): %v", err)
	}
	if span.Len() != 3 {
		t.Errorf("Read(span) rows = %d", span.Len())
	}

	if _, err := f.Read("nope"); !errors.Is(err, ErrBadColumn) {
		t.Errorf("unknown column: %v", err)
	}
	if _, err := f.Read(99); !errors.Is(err, ErrRowRange) {
		t.Errorf("row out of range: %v", err)
	}
}

func TestDelimitedRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.csv.rec")
	src := catalogRecords(t, 6)
	if err := Write(path, src, nil, WithDelim(",")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "'_DELIM': ','") {
		t.Errorf("header missing delimiter marker:\n%s", raw)
	}
	// text-mode tags carry no byte order
	if strings.Contains(string(raw), "<f8") {
		t.Errorf("byte-order tag leaked into text header:\n%s", raw)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Len() != 6 {
		t.Fatalf("Len = %d", got.Len())
	}
	for i := 0; i < 6; i++ {
		ra, _ := got.Float64(i, "ra")
		id, _ := got.Int64(i, "id")
		if ra != float64(i)*3.6 || id != int64(i) {
			t.Errorf("row %d: ra=%v id=%v", i, ra, id)
		}
	}

	sub, err := Read(path, []int64{4, 0}, "id")
	if err != nil {
		t.Fatalf("partial delimited read: %v", err)
	}
	if id, _ := sub.Int64(0, "id"); id != 4 {
		t.Errorf("id[0] = %d, want 4", id)
	}
}

func TestDelimitedAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "grow.csv.rec")
	if err := Write(path, catalogRecords(t, 3), nil, WithDelim("\t")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Append(path, catalogRecords(t, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if size, _ := hdr.Int64("_SIZE"); size != 5 {
		t.Errorf("_SIZE = %d, want 5", size)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Len() != 5 {
		t.Errorf("Len = %d", got.Len())
	}
}

func TestAppendSchemaMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "strict.rec")
	if err := Write(path, catalogRecords(t, 2), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	other, err := rec.ParseFields([2]string{"x", "<f8"})
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	if err := Append(path, rec.NewRecords(other, 1)); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Append with different layout: %v", err)
	}
}

func TestAppendMissingFileDegradesToWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fresh.rec")
	if err := Append(path, catalogRecords(t, 4)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Len() != 4 {
		t.Errorf("Len = %d", got.Len())
	}
}

func TestAppendDelimOptionKeepsBinaryEncoding(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "binary.rec")
	if err := Write(path, catalogRecords(t, 2), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The file's header decides the encoding; a stray delimiter on the
	// append handle must not turn packed records into text lines.
	if err := Append(path, catalogRecords(t, 2), WithDelim(",")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, hdr, err := ReadWithHeader(path)
	if err != nil {
		t.Fatalf("ReadWithHeader: %v", err)
	}
	want := catalogRecords(t, 2)
	if err := want.AppendRecords(catalogRecords(t, 2)); err != nil {
		t.Fatalf("AppendRecords: %v", err)
	}
	if !got.Equal(want) {
		t.Error("appended payload differs from source records")
	}
	if _, ok := hdr.Get("_DELIM"); ok {
		t.Error("binary file grew a _DELIM entry")
	}
}

func TestHeaderCountPastPayloadRejected(t *testing.T) {
	t.Parallel()

	binaryBody := "{'_DTYPE': [('ra', '<f8')], '_HAS_FIELDS': True}\nEND\n\n"
	textBody := "{'_DTYPE': [('ra', 'f8')], '_HAS_FIELDS': True, '_DELIM': ','}\nEND\n\n"
	cases := []struct {
		name string
		data string
	}{
		{"overflowing count", fmt.Sprintf("SIZE = %20d\n", int64(9000000000000000000)) + binaryBody + string(make([]byte, 16))},
		{"negative count", fmt.Sprintf("SIZE = %20d\n", int64(-3)) + binaryBody + string(make([]byte, 16))},
		{"count past binary payload", fmt.Sprintf("SIZE = %20d\n", int64(5)) + binaryBody + string(make([]byte, 16))},
		{"count past text payload", fmt.Sprintf("SIZE = %20d\n", int64(100)) + textBody + "1.5\n2.5\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bogus.rec")
			if err := os.WriteFile(path, []byte(tc.data), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Read(path); !errors.Is(err, ErrFormat) {
				t.Errorf("Read: %v, want ErrFormat", err)
			}
		})
	}
}

func TestReservedKeyRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.rec")
	err := Write(path, catalogRecords(t, 1), map[string]any{"_dtype": "sneaky"})
	if !errors.Is(err, ErrReservedKey) {
		t.Errorf("reserved key: %v", err)
	}
}

func TestLegacyHeaderReadOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "legacy.rec")
	src := catalogRecords(t, 2)
	header := "NROWS = 2\n{'_DTYPE': [('ra', '<f8'), ('dec', '<f8'), ('id', '<i4')], '_HAS_FIELDS': True}\nEND\n\n"
	if err := os.WriteFile(path, append([]byte(header), src.Bytes()...), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read legacy: %v", err)
	}
	if !got.Equal(src) {
		t.Error("legacy read differs from payload")
	}

	if err := Append(path, catalogRecords(t, 1)); !errors.Is(err, ErrLegacyHeader) {
		t.Errorf("legacy append: %v", err)
	}
}

func TestSimpleArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "image.rec")
	tag, _ := rec.ParseTypeTag("<f4")
	src := rec.NewRecords(rec.Simple(tag), 20)
	for i := 0; i < 20; i++ {
		src.Set(i, "", float64(i)/4)
	}
	src.SetShape(4, 5)

	if err := Write(path, src, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, hdr, err := ReadWithHeader(path)
	if err != nil {
		t.Fatalf("ReadWithHeader: %v", err)
	}
	if hf, _ := hdr.Get("_HAS_FIELDS"); hf != false {
		t.Errorf("_HAS_FIELDS = %v", hf)
	}
	if shape := got.Shape(); len(shape) != 2 || shape[0] != 4 || shape[1] != 5 {
		t.Errorf("Shape = %v", shape)
	}
	if v, _ := got.Float64(7, ""); v != 1.75 {
		t.Errorf("element 7 = %v", v)
	}

	// a column selector makes no sense without named fields
	if _, err := Read(path, "ra"); !errors.Is(err, ErrBadColumn) {
		t.Errorf("column on simple array: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "absent.rec"), ModeRead)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Open missing: %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ErrNotFound should carry the fs error: %v", err)
	}
}

func TestCloseMakesHandleInert(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "closed.rec")
	if err := Write(path, catalogRecords(t, 1), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close: %v", err)
	}
	if f.Size() != 0 || f.Descriptor() != nil || f.ReadHeader() != nil {
		t.Error("derived state survived Close")
	}
	// closing twice is fine
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenReader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stream.rec")
	src := catalogRecords(t, 5)
	if err := Write(path, src, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	f, err := OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	got, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Equal(src) {
		t.Error("stream read differs from file read")
	}
}

func TestParseModes(t *testing.T) {
	t.Parallel()

	cases := map[string]Mode{"r": ModeRead, "w": ModeWrite, "r+": ModeAppend, "a": ModeAppend}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("rw"); err == nil {
		t.Error("ParseMode(rw) accepted")
	}
}
