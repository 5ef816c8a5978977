// drv_headless.go contains a BIOS with no hardware behind it at all.
//
// The display is an in-memory cell grid, the keyboard is a queue of
// scripted bytes, NVRAM is a byte slice, and audio submissions are
// captured rather than played.  This is what the test-suite runs the
// OS against, which is why the driver is hidden from GetDrivers.

package bios

import (
	"fmt"
	"io"
	"time"
)

// HeadlessCell is one recorded character cell of the headless display.
type HeadlessCell struct {
	Glyph uint8
	Fg    uint8
	Bg    uint8
}

// Headless implements the Bios interface entirely in memory.
type Headless struct {
	rows int
	cols int

	cells []HeadlessCell

	curRow int
	curCol int

	input []uint8

	nvram    []byte
	nvramErr error

	disk []byte

	audio [][]byte

	mixers []MixerChannel

	now time.Time
}

// NewHeadless returns a headless BIOS with a display of the given size.
func NewHeadless(rows int, cols int) *Headless {
	h := &Headless{
		rows:  rows,
		cols:  cols,
		cells: make([]HeadlessCell, rows*cols),
		now:   time.Date(2001, 3, 18, 9, 30, 0, 0, time.UTC),
		mixers: []MixerChannel{
			{Name: "master", Level: 192, Max: 255},
			{Name: "left", Level: 255, Max: 255},
			{Name: "right", Level: 255, Max: 255},
		},
	}
	for i := range h.cells {
		h.cells[i].Glyph = ' '
	}
	return h
}

// PushInput appends scripted keyboard input.
func (h *Headless) PushInput(s string) {
	h.input = append(h.input, []uint8(s)...)
}

// SetNvram replaces the NVRAM contents.
func (h *Headless) SetNvram(data []byte) {
	h.nvram = append([]byte{}, data...)
}

// Nvram returns the current NVRAM contents.
func (h *Headless) Nvram() []byte {
	return h.nvram
}

// FailNvram makes every NVRAM operation return the given error.
func (h *Headless) FailNvram(err error) {
	h.nvramErr = err
}

// SetDisk installs a disk image to expose as block device zero.
func (h *Headless) SetDisk(data []byte) {
	h.disk = data
}

// AudioCaptured returns every buffer submitted for playback.
func (h *Headless) AudioCaptured() [][]byte {
	return h.audio
}

// CellAt returns the recorded display cell at the given position.
func (h *Headless) CellAt(row int, col int) HeadlessCell {
	return h.cells[row*h.cols+col]
}

// Screen renders the recorded display as a string, one line per row,
// with trailing spaces removed.  Convenient for test assertions.
func (h *Headless) Screen() string {
	out := ""
	for r := 0; r < h.rows; r++ {
		line := ""
		pend := ""
		for c := 0; c < h.cols; c++ {
			g := h.cells[r*h.cols+c].Glyph
			if g == ' ' {
				pend += " "
				continue
			}
			line += pend + string(rune(g))
			pend = ""
		}
		out += line + "\n"
	}
	return out
}

// Cursor returns the position of the hardware cursor.
func (h *Headless) Cursor() (int, int) {
	return h.curRow, h.curCol
}

func (h *Headless) TextSize() (int, int) {
	return h.rows, h.cols
}

func (h *Headless) PlotGlyph(row int, col int, glyph uint8, fg uint8, bg uint8) {
	if row < 0 || row >= h.rows || col < 0 || col >= h.cols {
		return
	}
	h.cells[row*h.cols+col] = HeadlessCell{Glyph: glyph, Fg: fg, Bg: bg}
}

func (h *Headless) SetCursor(row int, col int) {
	h.curRow = row
	h.curCol = col
}

func (h *Headless) Flush() {
}

func (h *Headless) BlockForKey() (uint8, error) {
	if len(h.input) == 0 {
		return 0x00, io.EOF
	}
	b := h.input[0]
	h.input = h.input[1:]
	return b, nil
}

func (h *Headless) PendingKey() bool {
	return len(h.input) > 0
}

func (h *Headless) Now() time.Time {
	return h.now
}

func (h *Headless) SetNow(t time.Time) error {
	h.now = t
	return nil
}

func (h *Headless) Ticks() uint64 {
	return uint64(h.now.UnixMilli())
}

func (h *Headless) NvramRead() ([]byte, error) {
	if h.nvramErr != nil {
		return nil, h.nvramErr
	}
	return h.nvram, nil
}

func (h *Headless) NvramWrite(data []byte) error {
	if h.nvramErr != nil {
		return h.nvramErr
	}
	h.nvram = append([]byte{}, data...)
	return nil
}

func (h *Headless) BlockDevices() []DeviceInfo {
	if h.disk == nil {
		return nil
	}
	return []DeviceInfo{
		{Name: "ram0", BlockSize: SectorSize, NumBlocks: uint64(len(h.disk) / SectorSize)},
	}
}

func (h *Headless) BlockRead(device uint8, index uint64, buf []byte) error {
	if h.disk == nil || device != 0 {
		return ErrNoDevice
	}
	off := int(index) * SectorSize
	if off+len(buf) > len(h.disk) {
		return fmt.Errorf("block read beyond end of device")
	}
	copy(buf, h.disk[off:])
	return nil
}

func (h *Headless) BlockWrite(device uint8, index uint64, data []byte) error {
	if h.disk == nil || device != 0 {
		return ErrNoDevice
	}
	off := int(index) * SectorSize
	if off+len(data) > len(h.disk) {
		return fmt.Errorf("block write beyond end of device")
	}
	copy(h.disk[off:], data)
	return nil
}

func (h *Headless) MixerChannels() []MixerChannel {
	out := make([]MixerChannel, len(h.mixers))
	copy(out, h.mixers)
	return out
}

func (h *Headless) SetMixerLevel(name string, level uint8) error {
	for i := range h.mixers {
		if h.mixers[i].Name == name {
			h.mixers[i].Level = level
			return nil
		}
	}
	return fmt.Errorf("no mixer channel named '%s'", name)
}

func (h *Headless) SubmitAudio(samples []byte) error {
	h.audio = append(h.audio, append([]byte{}, samples...))
	return nil
}

func (h *Headless) GetName() string {
	return "headless"
}

func (h *Headless) TearDown() {
}

// init registers our driver, by name.
func init() {
	Register("headless", func(o Options) (Bios, error) {
		return NewHeadless(25, 80), nil
	})
}
