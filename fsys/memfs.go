package fsys

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// MemFS is an in-memory filesystem, used by the test-suite.
type MemFS struct {
	files map[string]*memFile
	now   time.Time
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{
		files: make(map[string]*memFile),
		now:   time.Date(2001, 3, 18, 9, 30, 0, 0, time.UTC),
	}
}

// WriteFile installs a file wholesale.
func (m *MemFS) WriteFile(name string, data []byte) {
	clean, err := cleanPath(name)
	if err != nil {
		return
	}
	m.files[clean] = &memFile{
		data:    append([]byte{}, data...),
		modTime: m.now,
	}
}

// ReadFile returns a file's contents, for assertions.
func (m *MemFS) ReadFile(name string) ([]byte, bool) {
	clean, err := cleanPath(name)
	if err != nil {
		return nil, false
	}
	f, ok := m.files[clean]
	if !ok {
		return nil, false
	}
	return append([]byte{}, f.data...), true
}

// Open opens an existing file.
func (m *MemFS) Open(name string) (Handle, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return nil, err
	}
	f, ok := m.files[clean]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", name)
	}
	return &memHandle{file: f}, nil
}

// Create creates or truncates a file.
func (m *MemFS) Create(name string) (Handle, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return nil, err
	}
	f := &memFile{modTime: m.now}
	m.files[clean] = f
	return &memHandle{file: f}, nil
}

// List returns every file; MemFS has no subdirectories.
func (m *MemFS) List(dir string) ([]Entry, error) {
	if _, err := cleanPath(dir); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Entry
	for _, name := range names {
		f := m.files[name]
		out = append(out, Entry{
			Name:    name,
			Size:    int64(len(f.data)),
			ModTime: f.modTime,
		})
	}
	return out, nil
}

// memHandle implements Handle over a memFile.
type memHandle struct {
	file   *memFile
	offset int64
	closed bool
}

func (h *memHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("read on closed handle")
	}
	if h.offset >= int64(len(h.file.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.file.data[h.offset:])
	h.offset += int64(n)
	return n, nil
}

func (h *memHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, fmt.Errorf("write on closed handle")
	}
	// Extend with zeroes if a seek went past the end.
	end := h.offset + int64(len(p))
	for int64(len(h.file.data)) < end {
		h.file.data = append(h.file.data, 0)
	}
	copy(h.file.data[h.offset:], p)
	h.offset = end
	return len(p), nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = h.offset + offset
	case io.SeekEnd:
		next = int64(len(h.file.data)) + offset
	default:
		return 0, fmt.Errorf("bad whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek before start of file")
	}
	h.offset = next
	return next, nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}
