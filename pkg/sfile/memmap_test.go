package sfile

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mbaird/sfile/pkg/rec"
)

func TestMemmapMatchesRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mapped.rec")
	src := catalogRecords(t, 50)
	if err := Write(path, src, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	m, err := f.Memmap(ModeRead)
	if err != nil {
		t.Fatalf("Memmap: %v", err)
	}
	defer m.Close()

	if !m.Records().Equal(src) {
		t.Error("mapped payload differs from source")
	}
	if ra, _ := m.Records().Float64(10, "ra"); ra != 36.0 {
		t.Errorf("ra[10] = %v", ra)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestMemmapSimpleArrayKeepsShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "image.rec")
	tag, _ := rec.ParseTypeTag("<i4")
	src := rec.NewRecords(rec.Simple(tag), 6)
	for i := 0; i < 6; i++ {
		src.Set(i, "", int64(i*i))
	}
	src.SetShape(2, 3)
	if err := Write(path, src, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	m, err := f.Memmap(ModeRead)
	if err != nil {
		t.Fatalf("Memmap: %v", err)
	}
	defer m.Close()

	if shape := m.Records().Shape(); len(shape) != 2 || shape[0] != 2 || shape[1] != 3 {
		t.Errorf("Shape = %v", shape)
	}
	if v, _ := m.Records().Int64(5, ""); v != 25 {
		t.Errorf("element 5 = %d", v)
	}
}

func TestMemmapRejectsWritableModes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mapped.rec")
	if err := Write(path, catalogRecords(t, 3), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	for _, mode := range []Mode{ModeWrite, ModeAppend} {
		if _, err := f.Memmap(mode); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Memmap(%v): %v, want ErrUnsupported", mode, err)
		}
	}
}

func TestMemmapDelimitedUnsupported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "text.rec")
	if err := Write(path, catalogRecords(t, 3), nil, WithDelim(",")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, err := f.Memmap(ModeRead); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Memmap on delimited file: %v", err)
	}
}
