// Package version exists solely so that we can store the version of the
// OS in one location, despite needing it in several places.
//
// The main.go driver-package wants it for the "-version" flag, the shell
// shows it in the boot banner, and the system-call table reports it to
// running applications.  Duplicating the version string in three places
// is a recipe for drift and confusion, so this package is the result.
package version

import "fmt"

var (
	// version is populated with our release tag, via the build system.
	version = "unreleased"
)

// GetVersionBanner returns a banner which is suitable for printing at boot,
// to show our name, version, and homepage link.
func GetVersionBanner() string {

	str := fmt.Sprintf("HALOS %s\n%s\n", version, "https://github.com/halos-project/halos")
	return str
}

// GetVersionString returns our version number as a string.
func GetVersionString() string {
	return version
}
