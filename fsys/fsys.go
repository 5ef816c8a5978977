// Package fsys defines the filesystem capability the OS core consumes.
//
// The real traversal work - partitions, FAT chains, and so on - happens
// behind this interface; the core only ever opens, reads, writes,
// seeks, closes, and lists.  The hosted implementation maps the OS
// filesystem onto a directory of the host machine; the in-memory
// implementation exists for the test-suite.
package fsys

import (
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrBadPath is returned for paths which try to escape the filesystem
// root.
var ErrBadPath = errors.New("invalid path")

// Entry describes a single directory entry.
type Entry struct {

	// Name is the file name, without any directory part.
	Name string

	// Size is the length of the file, in bytes.
	Size int64

	// Dir is true for subdirectories.
	Dir bool

	// ModTime is when the file was last changed.
	ModTime time.Time
}

// Handle is an open file.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Filesystem is the capability surface handed to the shell and to the
// system-call layer.
type Filesystem interface {

	// Open opens an existing file for reading and writing.
	Open(name string) (Handle, error)

	// Create creates or truncates a file.
	Create(name string) (Handle, error)

	// List returns the entries of the given directory; "" means the
	// root.
	List(dir string) ([]Entry, error)
}

// cleanPath normalises a path and rejects attempts to climb out of the
// root.
func cleanPath(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	name = path.Clean(name)
	if name == "." {
		return "", nil
	}
	if name == ".." || strings.HasPrefix(name, "../") {
		return "", ErrBadPath
	}
	return name, nil
}
