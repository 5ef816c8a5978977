package fsys

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirFS exposes a directory of the host machine as the OS filesystem.
type DirFS struct {

	// root is the host directory acting as our root.
	root string
}

// NewDirFS returns a filesystem rooted at the given host directory.
func NewDirFS(root string) *DirFS {
	return &DirFS{root: root}
}

// resolve maps an OS path onto a host path, safely.
func (d *DirFS) resolve(name string) (string, error) {
	clean, err := cleanPath(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

// Open opens an existing file for reading and writing.
func (d *DirFS) Open(name string) (Handle, error) {
	host, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(host, os.O_RDWR, 0o644)
	if err != nil {
		// Fall back to read-only, for files we may not write.
		f, err = os.Open(host)
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Create creates or truncates a file.
func (d *DirFS) Create(name string) (Handle, error) {
	host, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Create(host)
}

// List returns the entries of the given directory.
func (d *DirFS) List(dir string) ([]Entry, error) {
	host, err := d.resolve(dir)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadDir(host)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %s", dir, err)
	}

	var out []Entry
	for _, de := range raw {
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    de.Name(),
			Size:    fi.Size(),
			Dir:     de.IsDir(),
			ModTime: fi.ModTime(),
		})
	}
	return out, nil
}
