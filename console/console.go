// Package console owns the text frame buffer, the cursor, and the
// byte-stream control-sequence decoder.
//
// Both the shell and any running application write through the one
// console, so their output interleaves on a single coherent buffer.
// Bytes are fed one at a time through an explicit state machine; a
// malformed sequence is discarded and the decoder drops back to the
// ground state without disturbing the cursor, so garbage on the stream
// can never wedge the display.
package console

import (
	"log/slog"
)

// Colour indices into the standard 16-entry palette.
const (
	Black = iota
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	White
	BrightBlack
	BrightRed
	BrightGreen
	BrightYellow
	BrightBlue
	BrightMagenta
	BrightCyan
	BrightWhite
)

// DefaultFg is the foreground colour at reset.
const DefaultFg = White

// DefaultBg is the background colour at reset.
const DefaultBg = Black

// tabStop is the column interval tab advances to.
const tabStop = 8

// maxParams caps how many CSI parameters we collect.
const maxParams = 8

// Cell is one character cell of the frame buffer: a glyph plus 4-bit
// foreground and background colours.
type Cell struct {
	Glyph uint8
	Fg    uint8
	Bg    uint8
}

// Video is the slice of the BIOS call surface the console draws with.
type Video interface {

	// TextSize returns the dimensions of the text display.
	TextSize() (rows int, cols int)

	// PlotGlyph places a single glyph at the given position.
	PlotGlyph(row int, col int, glyph uint8, fg uint8, bg uint8)

	// SetCursor moves the visible hardware cursor.
	SetCursor(row int, col int)

	// Flush makes any buffered video output visible.
	Flush()
}

// state enumerates the decoder states.
type state int

const (
	stGround state = iota
	stEscape
	stCsiEntry
	stCsiParam
	stOscString
)

// Console holds the frame buffer, the cursor, and the decoder state.
type Console struct {

	// video is where cells are pushed as they change.
	video Video

	// width and height are the frame buffer dimensions.
	width  int
	height int

	// cells is the frame buffer, rows*cols cells in row-major order.
	cells []Cell

	// row and col are the cursor position; always within bounds.
	row int
	col int

	// savedRow and savedCol hold the save/restore cursor slot.
	savedRow int
	savedCol int

	// fg and bg are the current drawing attributes.
	fg uint8
	bg uint8

	// st is the decoder state.
	st state

	// params collects CSI parameters as they arrive.
	params [maxParams]int

	// nParams counts how many parameters have been started.
	nParams int

	// csiIgnore is set when a CSI sequence contains bytes we don't
	// understand; the final byte then discards the whole sequence.
	csiIgnore bool

	// oscEsc records that the previous OSC byte was an escape, so we
	// can spot the two-byte string terminator.
	oscEsc bool

	// logger is used for debugging and diagnostics.
	logger *slog.Logger
}

// New creates a console matching the size of the given video device,
// and clears it.
func New(video Video, logger *slog.Logger) *Console {
	rows, cols := video.TextSize()

	c := &Console{
		video:  video,
		width:  cols,
		height: rows,
		cells:  make([]Cell, rows*cols),
		fg:     DefaultFg,
		bg:     DefaultBg,
		logger: logger,
	}
	c.Clear()
	return c
}

// Size returns the dimensions of the console, rows then columns.
func (c *Console) Size() (int, int) {
	return c.height, c.width
}

// Cursor returns the cursor position, row then column.
func (c *Console) Cursor() (int, int) {
	return c.row, c.col
}

// CellAt returns the frame buffer cell at the given position.
func (c *Console) CellAt(row int, col int) Cell {
	return c.cells[row*c.width+col]
}

// Attr returns the current drawing attributes, foreground then
// background.
func (c *Console) Attr() (uint8, uint8) {
	return c.fg, c.bg
}

// Write feeds bytes through the decoder, one at a time.
//
// Everything plotted is visible by the time Write returns; this is the
// io.Writer used by the shell and by the console-write system call.
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.step(b)
	}
	c.video.SetCursor(c.row, c.col)
	c.video.Flush()
	return len(p), nil
}

// WriteString is a convenience wrapper around Write.
func (c *Console) WriteString(s string) {
	c.Write([]byte(s))
}

// Clear blanks the frame buffer with the default attributes, homes the
// cursor, and repaints.
func (c *Console) Clear() {
	for i := range c.cells {
		c.cells[i] = Cell{Glyph: ' ', Fg: DefaultFg, Bg: DefaultBg}
	}
	c.row = 0
	c.col = 0
	c.repaint()
	c.video.SetCursor(0, 0)
	c.video.Flush()
}

// repaint pushes every cell to the video device.
func (c *Console) repaint() {
	for r := 0; r < c.height; r++ {
		for col := 0; col < c.width; col++ {
			cell := c.cells[r*c.width+col]
			c.video.PlotGlyph(r, col, cell.Glyph, cell.Fg, cell.Bg)
		}
	}
}

// step advances the decoder by one byte.
func (c *Console) step(b uint8) {
	switch c.st {
	case stGround:
		c.ground(b)
	case stEscape:
		c.escape(b)
	case stCsiEntry, stCsiParam:
		c.csi(b)
	case stOscString:
		c.osc(b)
	}
}

// ground handles bytes arriving outside any escape sequence.
func (c *Console) ground(b uint8) {
	switch b {
	case 0x1B:
		c.st = stEscape
	case '\n':
		c.col = 0
		c.lineFeed()
	case '\r':
		c.col = 0
	case 0x08:
		if c.col > 0 {
			c.col--
		}
	case '\t':
		next := ((c.col / tabStop) + 1) * tabStop
		if next > c.width-1 {
			next = c.width - 1
		}
		c.col = next
	case 0x07:
		// BEL - nothing to ring.
	default:
		if b >= 0x20 {
			c.plot(b)
		}
	}
}

// escape handles the byte after an ESC.
func (c *Console) escape(b uint8) {
	switch b {
	case '[':
		c.st = stCsiEntry
		c.nParams = 0
		c.csiIgnore = false
		for i := range c.params {
			c.params[i] = 0
		}
	case ']':
		c.st = stOscString
		c.oscEsc = false
	case '7':
		c.savedRow = c.row
		c.savedCol = c.col
		c.st = stGround
	case '8':
		c.row = c.savedRow
		c.col = c.savedCol
		c.clampCursor()
		c.st = stGround
	case 'c':
		c.fg = DefaultFg
		c.bg = DefaultBg
		c.Clear()
		c.st = stGround
	default:
		// Unknown escape; drop it.
		c.st = stGround
	}
}

// csi handles bytes inside a control sequence.
func (c *Console) csi(b uint8) {
	switch {
	case b >= '0' && b <= '9':
		if c.st == stCsiEntry {
			c.st = stCsiParam
			c.nParams = 1
		}
		i := c.nParams - 1
		if i < maxParams {
			v := c.params[i]*10 + int(b-'0')
			if v > 9999 {
				v = 9999
			}
			c.params[i] = v
		}
	case b == ';':
		if c.nParams == 0 {
			c.nParams = 1
		}
		c.nParams++
		c.st = stCsiParam
	case b >= 0x40 && b <= 0x7E:
		if !c.csiIgnore {
			c.csiDispatch(b)
		}
		c.st = stGround
	case b >= 0x20 && b <= 0x3F:
		// Private markers and intermediates we don't implement;
		// swallow the rest of the sequence.
		c.csiIgnore = true
	default:
		// Malformed; discard and resynchronise.
		c.st = stGround
	}
}

// osc consumes an operating-system-command string, which we always
// discard, watching for either terminator.
func (c *Console) osc(b uint8) {
	switch {
	case b == 0x07:
		c.st = stGround
	case c.oscEsc && b == '\\':
		c.st = stGround
	case b == 0x1B:
		c.oscEsc = true
	default:
		c.oscEsc = false
	}
}

// param returns the idx'th CSI parameter, substituting def when the
// parameter is missing or zero.
func (c *Console) param(idx int, def int) int {
	if idx >= c.nParams || idx >= maxParams || c.params[idx] == 0 {
		return def
	}
	return c.params[idx]
}

// csiDispatch executes a completed control sequence.
func (c *Console) csiDispatch(final uint8) {
	switch final {
	case 'A':
		c.row -= c.param(0, 1)
	case 'B':
		c.row += c.param(0, 1)
	case 'C':
		c.col += c.param(0, 1)
	case 'D':
		c.col -= c.param(0, 1)
	case 'G':
		c.col = c.param(0, 1) - 1
	case 'H', 'f':
		c.row = c.param(0, 1) - 1
		c.col = c.param(1, 1) - 1
	case 'J':
		c.eraseDisplay(c.paramRaw(0))
	case 'K':
		c.eraseLine(c.paramRaw(0))
	case 'm':
		c.selectGraphics()
	case 's':
		c.savedRow = c.row
		c.savedCol = c.col
	case 'u':
		c.row = c.savedRow
		c.col = c.savedCol
	default:
		c.logger.Debug("unhandled control sequence",
			slog.String("final", string(rune(final))))
	}
	c.clampCursor()
}

// paramRaw returns the idx'th CSI parameter with a default of zero,
// for sequences where zero is meaningful.
func (c *Console) paramRaw(idx int) int {
	if idx >= c.nParams || idx >= maxParams {
		return 0
	}
	return c.params[idx]
}

// clampCursor forces the cursor back inside the frame buffer.
func (c *Console) clampCursor() {
	if c.row < 0 {
		c.row = 0
	}
	if c.row > c.height-1 {
		c.row = c.height - 1
	}
	if c.col < 0 {
		c.col = 0
	}
	if c.col > c.width-1 {
		c.col = c.width - 1
	}
	if c.savedRow < 0 {
		c.savedRow = 0
	}
	if c.savedRow > c.height-1 {
		c.savedRow = c.height - 1
	}
	if c.savedCol < 0 {
		c.savedCol = 0
	}
	if c.savedCol > c.width-1 {
		c.savedCol = c.width - 1
	}
}

// selectGraphics applies an SGR sequence to the current attributes.
func (c *Console) selectGraphics() {
	if c.nParams == 0 {
		c.fg = DefaultFg
		c.bg = DefaultBg
		return
	}

	for i := 0; i < c.nParams && i < maxParams; i++ {
		p := c.params[i]
		switch {
		case p == 0:
			c.fg = DefaultFg
			c.bg = DefaultBg
		case p == 1:
			c.fg |= 0x08
		case p == 22:
			c.fg &= 0x07
		case p >= 30 && p <= 37:
			c.fg = (c.fg & 0x08) | uint8(p-30)
		case p == 39:
			c.fg = DefaultFg
		case p >= 40 && p <= 47:
			c.bg = uint8(p - 40)
		case p == 49:
			c.bg = DefaultBg
		case p >= 90 && p <= 97:
			c.fg = uint8(p-90) | 0x08
		case p >= 100 && p <= 107:
			c.bg = uint8(p-100) | 0x08
		default:
			// Attributes we can't render; ignored.
		}
	}
}

// plot writes a literal glyph at the cursor, then advances, wrapping at
// the right margin and scrolling at the bottom.
func (c *Console) plot(b uint8) {
	cell := Cell{Glyph: b, Fg: c.fg, Bg: c.bg}
	c.cells[c.row*c.width+c.col] = cell
	c.video.PlotGlyph(c.row, c.col, cell.Glyph, cell.Fg, cell.Bg)

	c.col++
	if c.col >= c.width {
		c.col = 0
		c.lineFeed()
	}
}

// lineFeed moves the cursor down one row, scrolling when it falls off
// the bottom.
func (c *Console) lineFeed() {
	c.row++
	if c.row >= c.height {
		c.row = c.height - 1
		c.scroll()
	}
}

// scroll moves every row up by one, blanks the bottom row, and
// repaints.
func (c *Console) scroll() {
	copy(c.cells, c.cells[c.width:])
	base := (c.height - 1) * c.width
	for i := 0; i < c.width; i++ {
		c.cells[base+i] = Cell{Glyph: ' ', Fg: DefaultFg, Bg: DefaultBg}
	}
	c.repaint()
}

// eraseDisplay implements the ED sequence.
func (c *Console) eraseDisplay(mode int) {
	blank := Cell{Glyph: ' ', Fg: c.fg, Bg: c.bg}
	cur := c.row*c.width + c.col

	switch mode {
	case 0:
		for i := cur; i < len(c.cells); i++ {
			c.cells[i] = blank
		}
	case 1:
		for i := 0; i <= cur; i++ {
			c.cells[i] = blank
		}
	case 2:
		for i := range c.cells {
			c.cells[i] = blank
		}
	default:
		return
	}
	c.repaint()
}

// eraseLine implements the EL sequence.
func (c *Console) eraseLine(mode int) {
	base := c.row * c.width

	from, to := 0, 0
	switch mode {
	case 0:
		from, to = c.col, c.width-1
	case 1:
		from, to = 0, c.col
	case 2:
		from, to = 0, c.width-1
	default:
		return
	}

	blank := Cell{Glyph: ' ', Fg: c.fg, Bg: c.bg}
	for i := from; i <= to; i++ {
		c.cells[base+i] = blank
		c.video.PlotGlyph(c.row, i, blank.Glyph, blank.Fg, blank.Bg)
	}
}
