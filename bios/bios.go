// Package bios is an abstraction over the hardware this OS runs upon.
//
// The OS proper never touches a device directly; everything goes through
// the call surface defined here - cell-addressed video output, keyboard
// byte retrieval, wall-clock time, non-volatile storage, block devices,
// and audio.  Swapping the implementation swaps the "machine" the OS is
// running on, without the OS noticing.
//
// We know we need a termbox-backed driver and a plain ANSI driver, and we
// have a headless driver for the test-suite, so we use a factory that can
// instantiate a driver given just a name.
package bios

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SectorSize is the block size used by every block device we expose.
const SectorSize = 512

// DeviceInfo describes a single block device.
type DeviceInfo struct {

	// Name is the human-readable name of the device.
	Name string

	// BlockSize is the size of each block, in bytes.
	BlockSize int

	// NumBlocks is the number of blocks the device holds.
	NumBlocks uint64
}

// MixerChannel describes a single audio mixer channel.
type MixerChannel struct {

	// Name identifies the channel.
	Name string

	// Level is the current volume level.
	Level uint8

	// Max is the largest level the channel accepts.
	Max uint8
}

// Bios is the interface that must be implemented by anything that wishes
// to act as the hardware layer beneath the OS.
//
// All calls are synchronous; the OS trusts the BIOS not to hang.
type Bios interface {

	// TextSize returns the dimensions of the text display.
	TextSize() (rows int, cols int)

	// PlotGlyph places a single glyph, with the given foreground and
	// background colours, at the given position.  Colours are indices
	// into the standard 16-entry palette.
	PlotGlyph(row int, col int, glyph uint8, fg uint8, bg uint8)

	// SetCursor moves the visible hardware cursor.
	SetCursor(row int, col int)

	// Flush makes any buffered video output visible.
	Flush()

	// BlockForKey returns the next byte of keyboard input, blocking
	// until one is available.  Special keys arrive as the ANSI byte
	// sequences a terminal would produce.
	BlockForKey() (uint8, error)

	// PendingKey reports whether keyboard input is waiting.
	PendingKey() bool

	// Now returns the current wall-clock time.
	Now() time.Time

	// SetNow changes the wall-clock time.
	SetNow(t time.Time) error

	// Ticks returns a monotonic tick counter.
	Ticks() uint64

	// NvramRead returns the contents of non-volatile storage.
	NvramRead() ([]byte, error)

	// NvramWrite replaces the contents of non-volatile storage.
	NvramWrite(data []byte) error

	// BlockDevices describes the available block devices.
	BlockDevices() []DeviceInfo

	// BlockRead reads len(buf)/SectorSize sectors, starting at the
	// given sector index.
	BlockRead(device uint8, index uint64, buf []byte) error

	// BlockWrite writes len(data)/SectorSize sectors, starting at the
	// given sector index.
	BlockWrite(device uint8, index uint64, data []byte) error

	// MixerChannels describes the audio mixer channels.
	MixerChannels() []MixerChannel

	// SetMixerLevel changes the level of the named mixer channel.
	SetMixerLevel(name string, level uint8) error

	// SubmitAudio queues a buffer of 16-bit little-endian samples for
	// playback, blocking until the device has accepted it.
	SubmitAudio(samples []byte) error

	// GetName returns the name of the driver.
	GetName() string

	// TearDown restores the host to the state it was in before the
	// driver was set up.
	TearDown()
}

// Options contains the settings passed to every driver constructor.
type Options struct {

	// Logger is used for debugging and diagnostics.
	Logger *slog.Logger

	// NvramPath is where hosted drivers persist the NVRAM blob.
	NvramPath string

	// DiskImage is the path of an optional disk image to expose as
	// block device zero.
	DiskImage string
}

// Constructor is the signature of a constructor-function which is used
// to instantiate an instance of a driver.
type Constructor func(o Options) (Bios, error)

// This is a map of known-drivers.
var handlers = struct {
	m map[string]Constructor
}{m: make(map[string]Constructor)}

// Register makes a BIOS driver available, by name.
//
// When one needs to be created the constructor can be called to create
// an instance of it.
func Register(name string, obj Constructor) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	handlers.m[name] = obj
}

// New creates a BIOS using the driver with the specified name.
func New(name string, o Options) (Bios, error) {
	// Downcase for consistency.
	name = strings.ToLower(name)

	// Do we have a constructor with the given name?
	ctor, ok := handlers.m[name]
	if !ok {
		return nil, fmt.Errorf("failed to lookup BIOS driver by name '%s'", name)
	}

	return ctor(o)
}

// GetDrivers returns all available driver-names.
//
// We hide the internal "headless" driver, which exists for the test-suite.
func GetDrivers() []string {
	valid := []string{}

	for x := range handlers.m {
		if x != "headless" {
			valid = append(valid, x)
		}
	}
	return valid
}
