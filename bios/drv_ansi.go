// drv_ansi.go drives a host terminal directly, with ANSI escape
// sequences for output and raw-mode reads from STDIN for input.
//
// It is less polished than the termbox driver but has no dependency on
// the terminal being resizable or scrollback-free, which makes it the
// better choice when the OS is run inside a pipeline or a dumb terminal.

package bios

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"
)

// AnsiBios drives a host terminal with plain escape sequences.
type AnsiBios struct {
	*hostState

	// rows and cols hold the size of the display.
	rows int
	cols int

	// writer is where we send our output.
	writer io.Writer

	// pushback holds bytes consumed by PendingKey but not yet
	// delivered through BlockForKey.
	pushback []uint8
}

// sgr returns the SGR parameters which select the given 4-bit colour
// pair on an ANSI terminal.
func sgr(fg uint8, bg uint8) string {
	fg &= 0x0F
	bg &= 0x0F

	f := 30 + int(fg)
	if fg > 7 {
		f = 90 + int(fg) - 8
	}
	b := 40 + int(bg)
	if bg > 7 {
		b = 100 + int(bg) - 8
	}
	return fmt.Sprintf("%d;%d", f, b)
}

// TextSize returns the dimensions of the text display.
func (a *AnsiBios) TextSize() (int, int) {
	return a.rows, a.cols
}

// PlotGlyph places a single glyph at the given position.
func (a *AnsiBios) PlotGlyph(row int, col int, glyph uint8, fg uint8, bg uint8) {
	c := glyph
	if glyph < 0x20 || glyph > 0x7E {
		c = '?'
	}
	fmt.Fprintf(a.writer, "\033[%d;%dH\033[%sm%c\033[0m", row+1, col+1, sgr(fg, bg), c)
}

// SetCursor moves the visible cursor.
func (a *AnsiBios) SetCursor(row int, col int) {
	fmt.Fprintf(a.writer, "\033[%d;%dH", row+1, col+1)
}

// Flush is a no-op; our writes are unbuffered.
func (a *AnsiBios) Flush() {
}

// BlockForKey returns the next byte of keyboard input, blocking until
// one is available.
//
// NOTE: This function should not echo keystrokes which are entered;
// echo is the console subsystem's job.
func (a *AnsiBios) BlockForKey() (uint8, error) {

	// Deliver anything PendingKey consumed first.
	if len(a.pushback) > 0 {
		b := a.pushback[0]
		a.pushback = a.pushback[1:]
		return b, nil
	}

	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return 0x00, fmt.Errorf("error making raw terminal %s", err)
	}

	// read only a single byte
	b := make([]byte, 1)
	_, err = os.Stdin.Read(b)
	if err != nil {
		term.Restore(int(os.Stdin.Fd()), oldState)
		return 0x00, fmt.Errorf("error reading a byte from stdin %s", err)
	}

	// restore the state of the terminal to avoid mixing RAW/Cooked
	err = term.Restore(int(os.Stdin.Fd()), oldState)
	if err != nil {
		return 0x00, fmt.Errorf("error restoring terminal state %s", err)
	}

	return b[0], nil
}

// PendingKey reports whether keyboard input is waiting.
//
// We briefly flip STDIN into non-blocking raw mode and attempt a read
// with a short deadline; the byte, if any, is pushed back via a one-byte
// pushback buffer.
func (a *AnsiBios) PendingKey() bool {

	if len(a.pushback) > 0 {
		return true
	}

	if syscall.SetNonblock(0, true) != nil {
		return false
	}
	defer syscall.SetNonblock(0, false)

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return false
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	// NOTE: This doesn't work without the non-blocking mode having
	// been set previously.
	_ = os.Stdin.SetDeadline(time.Now().Add(time.Millisecond * 5))
	defer os.Stdin.SetDeadline(time.Time{})

	b := make([]byte, 1)
	n, err := os.Stdin.Read(b)
	if err != nil || n != 1 {
		return false
	}

	a.pushback = append(a.pushback, b[0])
	return true
}

// GetName returns the name of this driver.
func (a *AnsiBios) GetName() string {
	return "ansi"
}

// TearDown clears any colour state we left on the terminal.
func (a *AnsiBios) TearDown() {
	fmt.Fprintf(a.writer, "\033[0m\r\n")
	a.hostState.close()
}

// init registers our driver, by name.
func init() {
	Register("ansi", func(o Options) (Bios, error) {
		host, err := newHostState(o)
		if err != nil {
			return nil, err
		}

		rows, cols := 25, 80
		if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			rows, cols = h, w
		}

		return &AnsiBios{
			hostState: host,
			rows:      rows,
			cols:      cols,
			writer:    os.Stdout,
		}, nil
	})
}
