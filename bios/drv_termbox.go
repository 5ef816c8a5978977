// drv_termbox.go uses the Termbox library to provide the video and
// keyboard devices on a host terminal.
//
// A goroutine is launched which collects any keyboard input and saves
// that to a buffer where it can be peeled off on-demand.  Special keys
// are translated into the ANSI byte sequences a real terminal would
// send, so the OS sees one uniform encoding regardless of driver.

package bios

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nsf/termbox-go"
	"golang.org/x/term"
)

// palette maps our 4-bit colour indices to termbox attributes; the top
// eight entries are the bright variants.
var palette = []termbox.Attribute{
	termbox.ColorBlack,
	termbox.ColorRed,
	termbox.ColorGreen,
	termbox.ColorYellow,
	termbox.ColorBlue,
	termbox.ColorMagenta,
	termbox.ColorCyan,
	termbox.ColorWhite,
	termbox.ColorBlack | termbox.AttrBold,
	termbox.ColorRed | termbox.AttrBold,
	termbox.ColorGreen | termbox.AttrBold,
	termbox.ColorYellow | termbox.AttrBold,
	termbox.ColorBlue | termbox.AttrBold,
	termbox.ColorMagenta | termbox.AttrBold,
	termbox.ColorCyan | termbox.AttrBold,
	termbox.ColorWhite | termbox.AttrBold,
}

// TermboxBios drives a host terminal via termbox, and carries the shared
// hosted device state for everything that isn't video or keyboard.
type TermboxBios struct {
	*hostState

	// rows and cols hold the size of the display.
	rows int
	cols int

	// oldState contains the state of the terminal, before switching
	// to RAW mode.
	oldState *term.State

	// cancel stops our polling goroutine.
	cancel context.CancelFunc

	// keys receives decoded keyboard bytes from the polling goroutine.
	keys chan uint8
}

// setup switches the terminal to raw mode, starts termbox, and begins
// polling the keyboard in the background.
func (tb *TermboxBios) setup() error {

	var err error

	// switch STDIN into 'raw' mode - we must do this before
	// we setup termbox.
	tb.oldState, err = term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("error making raw terminal %s", err)
	}

	err = termbox.Init()
	if err != nil {
		return fmt.Errorf("error initialising termbox %s", err)
	}

	tb.cols, tb.rows = termbox.Size()

	ctx, cancel := context.WithCancel(context.Background())
	tb.cancel = cancel
	tb.keys = make(chan uint8, 64)

	go tb.pollKeyboard(ctx)

	return nil
}

// pollKeyboard runs in a goroutine and collects keyboard input into a
// channel where it will be read from in the future.
func (tb *TermboxBios) pollKeyboard(ctx context.Context) {
	for {
		// Are we done?
		select {
		case <-ctx.Done():
			return
		default:
			// NOP
		}

		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			for _, b := range decodeKey(ev) {
				tb.keys <- b
			}
		}
	}
}

// decodeKey translates a termbox key event into the byte sequence a
// terminal would have sent for the same key.
func decodeKey(ev termbox.Event) []uint8 {
	if ev.Ch != 0 {
		if ev.Ch < 0x80 {
			return []uint8{uint8(ev.Ch)}
		}
		// Not representable in our 8-bit world.
		return []uint8{'?'}
	}

	switch ev.Key {
	case termbox.KeyEnter:
		return []uint8{'\r'}
	case termbox.KeySpace:
		return []uint8{' '}
	case termbox.KeyTab:
		return []uint8{'\t'}
	case termbox.KeyBackspace, termbox.KeyBackspace2:
		return []uint8{0x7F}
	case termbox.KeyEsc:
		return []uint8{0x1B}
	case termbox.KeyArrowUp:
		return []uint8{0x1B, '[', 'A'}
	case termbox.KeyArrowDown:
		return []uint8{0x1B, '[', 'B'}
	case termbox.KeyArrowRight:
		return []uint8{0x1B, '[', 'C'}
	case termbox.KeyArrowLeft:
		return []uint8{0x1B, '[', 'D'}
	case termbox.KeyCtrlC:
		return []uint8{0x03}
	}

	if ev.Key > 0 && ev.Key < 0x80 {
		return []uint8{uint8(ev.Key)}
	}
	return nil
}

// TextSize returns the dimensions of the text display.
func (tb *TermboxBios) TextSize() (int, int) {
	return tb.rows, tb.cols
}

// PlotGlyph places a single glyph at the given position.
func (tb *TermboxBios) PlotGlyph(row int, col int, glyph uint8, fg uint8, bg uint8) {
	r := rune(glyph)
	if glyph < 0x20 || glyph > 0x7E {
		r = '?'
	}
	termbox.SetCell(col, row, r, palette[fg&0x0F], palette[bg&0x0F])
}

// SetCursor moves the visible cursor.
func (tb *TermboxBios) SetCursor(row int, col int) {
	termbox.SetCursor(col, row)
}

// Flush makes any buffered video output visible.
func (tb *TermboxBios) Flush() {
	termbox.Flush()
}

// BlockForKey returns the next byte of keyboard input, blocking until
// one is available.
func (tb *TermboxBios) BlockForKey() (uint8, error) {
	return <-tb.keys, nil
}

// PendingKey reports whether keyboard input is waiting.
func (tb *TermboxBios) PendingKey() bool {
	return len(tb.keys) > 0
}

// GetName returns the name of this driver.
func (tb *TermboxBios) GetName() string {
	return "termbox"
}

// TearDown stops the keyboard poller, terminates termbox, and restores
// the terminal to the state we found it in.
func (tb *TermboxBios) TearDown() {
	if tb.cancel != nil {
		tb.cancel()
	}

	termbox.Close()

	if tb.oldState != nil {
		term.Restore(int(os.Stdin.Fd()), tb.oldState)
	}

	tb.hostState.close()

	// Give the polling goroutine a moment to notice the cancel.
	time.Sleep(10 * time.Millisecond)
}

// init registers our driver, by name.
func init() {
	Register("termbox", func(o Options) (Bios, error) {
		host, err := newHostState(o)
		if err != nil {
			return nil, err
		}
		tb := &TermboxBios{hostState: host}
		if err := tb.setup(); err != nil {
			host.close()
			return nil, err
		}
		return tb, nil
	})
}
