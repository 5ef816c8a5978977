// Package static is a hierarchy of files that are added to
// the generated system.
//
// The intention is that a fresh installation has a startup script and
// a demonstration application without the user copying anything into
// place by hand.
package static

import (
	"embed"
	"fmt"

	"github.com/halos-project/halos/fsys"
)

//go:embed boot.d
var content embed.FS

// GetContent returns the embedded filesystem we store within this package.
func GetContent() embed.FS {
	return content
}

// Install copies the shipped files into the given filesystem.
//
// Files the user already has are left alone, so an edited startup
// script survives a reboot.
func Install(fs fsys.Filesystem) error {

	entries, err := content.ReadDir("boot.d")
	if err != nil {
		return fmt.Errorf("failed to read embedded files: %s", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		// Present already?  Leave it be.
		if fh, err := fs.Open(name); err == nil {
			fh.Close()
			continue
		}

		data, err := content.ReadFile("boot.d/" + name)
		if err != nil {
			return fmt.Errorf("failed to read embedded file %s: %s", name, err)
		}

		fh, err := fs.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %s", name, err)
		}
		if _, err := fh.Write(data); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write %s: %s", name, err)
		}
		fh.Close()
	}
	return nil
}
