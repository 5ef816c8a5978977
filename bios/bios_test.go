package bios

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nsf/termbox-go"
)

// TestRegistry exercises the driver factory.
func TestRegistry(t *testing.T) {

	// The public drivers are visible; the test driver is not.
	drivers := GetDrivers()
	found := make(map[string]bool)
	for _, name := range drivers {
		found[name] = true
	}
	if !found["ansi"] || !found["termbox"] {
		t.Fatalf("drivers missing: %+v", drivers)
	}
	if found["headless"] {
		t.Fatalf("headless driver should be hidden")
	}

	// Unknown names fail.
	if _, err := New("wibble", Options{}); err == nil {
		t.Fatalf("unknown driver accepted")
	}

	// Lookups are case-insensitive.
	b, err := New("HEADLESS", Options{})
	if err != nil {
		t.Fatalf("case-insensitive lookup failed: %s", err)
	}
	if b.GetName() != "headless" {
		t.Fatalf("wrong driver: %s", b.GetName())
	}
	b.TearDown()
}

// TestSgr checks the colour-pair encoding for ANSI terminals.
func TestSgr(t *testing.T) {

	type testCase struct {
		fg       uint8
		bg       uint8
		expected string
	}

	tests := []testCase{
		{0, 0, "30;40"},
		{7, 0, "37;40"},
		{1, 4, "31;44"},
		{8, 0, "90;40"},
		{15, 8, "97;100"},
		// Out-of-range values are masked, not rejected.
		{0xF7, 0x10, "37;40"},
	}

	for _, tc := range tests {
		if out := sgr(tc.fg, tc.bg); out != tc.expected {
			t.Fatalf("sgr(%d,%d) = %q, not %q", tc.fg, tc.bg, out, tc.expected)
		}
	}
}

// TestDecodeKey checks the termbox-event translation.
func TestDecodeKey(t *testing.T) {

	type testCase struct {
		event    termbox.Event
		expected []uint8
	}

	tests := []testCase{
		{termbox.Event{Ch: 'a'}, []uint8{'a'}},
		{termbox.Event{Ch: '£'}, []uint8{'?'}},
		{termbox.Event{Key: termbox.KeyEnter}, []uint8{'\r'}},
		{termbox.Event{Key: termbox.KeySpace}, []uint8{' '}},
		{termbox.Event{Key: termbox.KeyBackspace}, []uint8{0x7F}},
		{termbox.Event{Key: termbox.KeyBackspace2}, []uint8{0x7F}},
		{termbox.Event{Key: termbox.KeyArrowUp}, []uint8{0x1B, '[', 'A'}},
		{termbox.Event{Key: termbox.KeyArrowLeft}, []uint8{0x1B, '[', 'D'}},
		{termbox.Event{Key: termbox.KeyCtrlC}, []uint8{0x03}},
	}

	for _, tc := range tests {
		out := decodeKey(tc.event)
		if len(out) != len(tc.expected) {
			t.Fatalf("decodeKey(%+v) = %v", tc.event, out)
		}
		for i := range out {
			if out[i] != tc.expected[i] {
				t.Fatalf("decodeKey(%+v) = %v", tc.event, out)
			}
		}
	}
}

// TestHeadlessDisplay checks the recorded cell grid.
func TestHeadlessDisplay(t *testing.T) {

	h := NewHeadless(4, 10)

	rows, cols := h.TextSize()
	if rows != 4 || cols != 10 {
		t.Fatalf("size %dx%d", rows, cols)
	}

	h.PlotGlyph(0, 0, 'A', 7, 0)
	h.PlotGlyph(1, 2, 'B', 1, 4)

	// Plots outside the display are dropped, not panics.
	h.PlotGlyph(-1, 0, 'X', 7, 0)
	h.PlotGlyph(0, 99, 'X', 7, 0)

	if c := h.CellAt(1, 2); c.Glyph != 'B' || c.Fg != 1 || c.Bg != 4 {
		t.Fatalf("cell %+v", c)
	}
	if !strings.HasPrefix(h.Screen(), "A\n") {
		t.Fatalf("screen:\n%s", h.Screen())
	}

	h.SetCursor(2, 3)
	if r, c := h.Cursor(); r != 2 || c != 3 {
		t.Fatalf("cursor %d,%d", r, c)
	}
}

// TestHeadlessInput checks the scripted keyboard.
func TestHeadlessInput(t *testing.T) {

	h := NewHeadless(4, 10)

	if h.PendingKey() {
		t.Fatalf("phantom input")
	}
	h.PushInput("ab")
	if !h.PendingKey() {
		t.Fatalf("input not pending")
	}

	for _, expected := range []uint8{'a', 'b'} {
		key, err := h.BlockForKey()
		if err != nil || key != expected {
			t.Fatalf("got %c/%v", key, err)
		}
	}

	// Exhaustion reports EOF, so scripted sessions terminate.
	if _, err := h.BlockForKey(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

// TestHeadlessBlockDevice checks bounds on the in-memory disk.
func TestHeadlessBlockDevice(t *testing.T) {

	h := NewHeadless(4, 10)

	if len(h.BlockDevices()) != 0 {
		t.Fatalf("phantom device")
	}
	if err := h.BlockRead(0, 0, make([]byte, SectorSize)); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}

	h.SetDisk(make([]byte, 4*SectorSize))
	devices := h.BlockDevices()
	if len(devices) != 1 || devices[0].NumBlocks != 4 {
		t.Fatalf("devices %+v", devices)
	}

	data := make([]byte, SectorSize)
	data[0] = 0xAA
	if err := h.BlockWrite(0, 2, data); err != nil {
		t.Fatalf("write failed: %s", err)
	}

	buf := make([]byte, SectorSize)
	if err := h.BlockRead(0, 2, buf); err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if buf[0] != 0xAA {
		t.Fatalf("read back %02X", buf[0])
	}

	// Reads beyond the end are refused.
	if err := h.BlockRead(0, 4, buf); err == nil {
		t.Fatalf("read beyond end accepted")
	}
	if err := h.BlockRead(1, 0, buf); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

// TestHostNvram checks the file-backed NVRAM area.
func TestHostNvram(t *testing.T) {

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "test.nvram")

	h, err := newHostState(Options{Logger: logger, NvramPath: path})
	if err != nil {
		t.Fatalf("setup failed: %s", err)
	}
	defer h.close()

	// A missing backing file reads as empty, not as an error.
	data, err := h.NvramRead()
	if err != nil || data != nil {
		t.Fatalf("missing file gave %v/%v", data, err)
	}

	if err := h.NvramWrite([]byte("blob")); err != nil {
		t.Fatalf("write failed: %s", err)
	}
	data, err = h.NvramRead()
	if err != nil || string(data) != "blob" {
		t.Fatalf("read back %q/%v", data, err)
	}
}

// TestHostDisk checks the file-backed block device.
func TestHostDisk(t *testing.T) {

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, 4*SectorSize), 0o644); err != nil {
		t.Fatalf("setup failed: %s", err)
	}

	h, err := newHostState(Options{Logger: logger, DiskImage: path})
	if err != nil {
		t.Fatalf("setup failed: %s", err)
	}
	defer h.close()

	devices := h.BlockDevices()
	if len(devices) != 1 || devices[0].NumBlocks != 4 {
		t.Fatalf("devices %+v", devices)
	}

	data := make([]byte, SectorSize)
	data[10] = 0x55
	if err := h.BlockWrite(0, 1, data); err != nil {
		t.Fatalf("write failed: %s", err)
	}
	buf := make([]byte, SectorSize)
	if err := h.BlockRead(0, 1, buf); err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if buf[10] != 0x55 {
		t.Fatalf("read back %02X", buf[10])
	}

	// A missing image fails the whole driver.
	if _, err := newHostState(Options{Logger: logger, DiskImage: "/nonexistent/disk.img"}); err == nil {
		t.Fatalf("missing image accepted")
	}
}

// TestHostClock checks the adjustable wall-clock.
func TestHostClock(t *testing.T) {

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := newHostState(Options{Logger: logger})
	if err != nil {
		t.Fatalf("setup failed: %s", err)
	}
	defer h.close()

	target := time.Date(1999, 12, 31, 23, 59, 0, 0, time.UTC)
	if err := h.SetNow(target); err != nil {
		t.Fatalf("SetNow failed: %s", err)
	}

	got := h.Now()
	if diff := got.Sub(target); diff < -time.Second || diff > time.Second {
		t.Fatalf("clock is %s, wanted about %s", got, target)
	}
}

// TestMixerLevels checks the fake mixer shared by the hosted drivers.
func TestMixerLevels(t *testing.T) {

	h := NewHeadless(4, 10)

	channels := h.MixerChannels()
	if len(channels) != 3 {
		t.Fatalf("channels %+v", channels)
	}

	if err := h.SetMixerLevel("master", 10); err != nil {
		t.Fatalf("set failed: %s", err)
	}
	for _, ch := range h.MixerChannels() {
		if ch.Name == "master" && ch.Level != 10 {
			t.Fatalf("level %d", ch.Level)
		}
	}

	if err := h.SetMixerLevel("wibble", 1); err == nil {
		t.Fatalf("unknown channel accepted")
	}
}
