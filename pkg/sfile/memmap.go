package sfile

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mbaird/sfile/pkg/rec"
)

// Mapped is a zero-copy view of a binary payload. The records share the
// file's pages when the mapping succeeded; otherwise they hold a private
// copy and behave identically. Close unmaps; the view must not be used
// after Close or after the owning File is closed.
type Mapped struct {
	recs   *rec.Records
	mapped []byte // whole-file mapping, nil on the copy path
}

// Records is the payload view.
func (m *Mapped) Records() *rec.Records { return m.recs }

// Mmapped reports whether the view shares pages with the file.
func (m *Mapped) Mmapped() bool { return m.mapped != nil }

// Close releases the mapping. Safe to call twice.
func (m *Mapped) Close() error {
	if m.mapped == nil {
		return nil
	}
	data := m.mapped
	m.mapped = nil
	m.recs = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("sfile: munmap: %w", err)
	}
	return nil
}

// Memmap maps the record payload. Only ModeRead mappings exist; any other
// mode fails with ErrUnsupported. Delimited files have no fixed record
// geometry to map and fail the same way, as do handles not backed by a
// file. When the platform refuses the mapping the payload is read into
// memory instead, so callers get a working view either way.
func (f *File) Memmap(mode Mode) (*Mapped, error) {
	if !f.open {
		return nil, ErrClosed
	}
	if mode != ModeRead {
		return nil, fmt.Errorf("%w: mappings are read-only", ErrUnsupported)
	}
	if f.hdr == nil {
		return nil, fmt.Errorf("%w: nothing written yet", ErrNotFound)
	}
	if f.delim != "" {
		return nil, fmt.Errorf("%w: cannot map delimited records", ErrUnsupported)
	}
	if f.f == nil {
		return nil, fmt.Errorf("%w: cannot map a plain stream", ErrUnsupported)
	}

	payload := f.size * int64(f.descr.Size())
	total := f.dataStart + payload

	// Map from byte 0: mmap offsets must be page-aligned and the header
	// region is tiny. The record view is a slice into the mapping.
	data, err := unix.Mmap(
		int(f.f.Fd()),
		0,
		int(total),
		unix.PROT_READ,
		unix.MAP_SHARED,
	)
	if err == nil {
		recs, wrapErr := rec.Wrap(f.descr, data[f.dataStart:total])
		if wrapErr != nil {
			_ = unix.Munmap(data)
			return nil, wrapErr
		}
		if f.shape != nil {
			recs.SetShape(f.shape...)
		}
		return &Mapped{recs: recs, mapped: data}, nil
	}
	f.log.Debug("mmap unavailable, copying payload", "path", f.path, "err", err)

	// Fallback path that does not require mmap support.
	buf := make([]byte, payload)
	if n, err := f.f.ReadAt(buf, f.dataStart); int64(n) < payload {
		return nil, fmt.Errorf("%w: payload short of %d records: %v", ErrFormat, f.size, err)
	}
	recs, err := rec.Wrap(f.descr, buf)
	if err != nil {
		return nil, err
	}
	if f.shape != nil {
		recs.SetShape(f.shape...)
	}
	return &Mapped{recs: recs}, nil
}
