package console

import (
	"log/slog"
	"os"
	"testing"

	"github.com/halos-project/halos/bios"
)

// newTestConsole returns a console drawing on a headless BIOS.
func newTestConsole(t *testing.T) (*Console, *bios.Headless) {
	t.Helper()

	hb := bios.NewHeadless(25, 80)
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(hb, log), hb
}

// TestPlainText ensures literal bytes are plotted and the cursor
// advances.
func TestPlainText(t *testing.T) {

	con, hb := newTestConsole(t)

	con.WriteString("Hello")

	for i, ch := range "Hello" {
		cell := con.CellAt(0, i)
		if cell.Glyph != uint8(ch) {
			t.Fatalf("cell %d holds %c, not %c", i, cell.Glyph, ch)
		}
		if cell.Fg != DefaultFg || cell.Bg != DefaultBg {
			t.Fatalf("cell %d has wrong attributes", i)
		}
	}

	if r, c := con.Cursor(); r != 0 || c != 5 {
		t.Fatalf("cursor at %d,%d not 0,5", r, c)
	}

	// The BIOS saw the same cells.
	if hb.CellAt(0, 0).Glyph != 'H' {
		t.Fatalf("BIOS didn't receive the plotted glyph")
	}
	if r, c := hb.Cursor(); r != 0 || c != 5 {
		t.Fatalf("BIOS cursor not updated")
	}
}

// TestColourSelection covers the behaviour called out in the design:
// "ESC [ 31 m A" plots an A in red at the old cursor position and
// advances by one column.
func TestColourSelection(t *testing.T) {

	con, _ := newTestConsole(t)

	con.Write([]byte("\x1b[31mA"))

	cell := con.CellAt(0, 0)
	if cell.Glyph != 'A' {
		t.Fatalf("glyph not plotted")
	}
	if cell.Fg != Red {
		t.Fatalf("foreground %d is not red", cell.Fg)
	}
	if _, c := con.Cursor(); c != 1 {
		t.Fatalf("cursor didn't advance")
	}

	// Bright colours, backgrounds, and reset.
	con.Write([]byte("\x1b[1;32;44mB\x1b[0mC"))
	cell = con.CellAt(0, 1)
	if cell.Fg != BrightGreen || cell.Bg != Blue {
		t.Fatalf("bold green on blue expected, got %d/%d", cell.Fg, cell.Bg)
	}
	cell = con.CellAt(0, 2)
	if cell.Fg != DefaultFg || cell.Bg != DefaultBg {
		t.Fatalf("reset didn't restore defaults")
	}
}

// TestCursorMovement exercises the relative and absolute motion
// sequences, and confirms clamping at every edge.
func TestCursorMovement(t *testing.T) {

	con, _ := newTestConsole(t)

	type testCase struct {
		input string
		row   int
		col   int
	}

	tests := []testCase{
		{"\x1b[10;20H", 9, 19},
		{"\x1b[3A", 6, 19},
		{"\x1b[2B", 8, 19},
		{"\x1b[5C", 8, 24},
		{"\x1b[4D", 8, 20},
		{"\x1b[999;999H", 24, 79},
		{"\x1b[999A", 0, 79},
		{"\x1b[999D", 0, 0},
		{"\x1b[H", 0, 0},
		{"\x1b[40G", 0, 39},
	}

	for _, tc := range tests {
		con.Write([]byte(tc.input))
		r, c := con.Cursor()
		if r != tc.row || c != tc.col {
			t.Fatalf("after %q cursor at %d,%d not %d,%d",
				tc.input, r, c, tc.row, tc.col)
		}
	}
}

// TestSaveRestore covers both the ESC 7/8 and the CSI s/u forms.
func TestSaveRestore(t *testing.T) {

	con, _ := newTestConsole(t)

	con.Write([]byte("\x1b[5;10H\x1b7\x1b[HX\x1b8"))
	if r, c := con.Cursor(); r != 4 || c != 9 {
		t.Fatalf("ESC 7/8 didn't restore: %d,%d", r, c)
	}

	con.Write([]byte("\x1b[2;2H\x1b[s\x1b[H\x1b[u"))
	if r, c := con.Cursor(); r != 1 || c != 1 {
		t.Fatalf("CSI s/u didn't restore: %d,%d", r, c)
	}
}

// TestErase checks the screen and line erase sequences.
func TestErase(t *testing.T) {

	con, _ := newTestConsole(t)

	con.WriteString("AAAA\r\nBBBB\r\nCCCC")

	// Erase to end of line two, from column 2.
	con.Write([]byte("\x1b[2;3H\x1b[K"))
	if con.CellAt(1, 1).Glyph != 'B' {
		t.Fatalf("EL erased too much")
	}
	if con.CellAt(1, 2).Glyph != ' ' {
		t.Fatalf("EL erased too little")
	}

	// Whole-screen erase.
	con.Write([]byte("\x1b[2J"))
	for _, pos := range [][2]int{{0, 0}, {1, 1}, {2, 3}} {
		if con.CellAt(pos[0], pos[1]).Glyph != ' ' {
			t.Fatalf("ED left a glyph at %v", pos)
		}
	}
}

// TestControlBytes checks tab, backspace, and carriage-return
// handling.
func TestControlBytes(t *testing.T) {

	con, _ := newTestConsole(t)

	con.WriteString("ab\t")
	if _, c := con.Cursor(); c != 8 {
		t.Fatalf("tab didn't advance to the next stop: %d", c)
	}

	con.WriteString("\t\t")
	if _, c := con.Cursor(); c != 24 {
		t.Fatalf("repeated tabs wrong: %d", c)
	}

	// Tab clamps at the right margin rather than wrapping.
	con.Write([]byte("\x1b[1;79H\t"))
	if _, c := con.Cursor(); c != 79 {
		t.Fatalf("tab didn't clamp: %d", c)
	}

	con.WriteString("\rxy\b")
	if _, c := con.Cursor(); c != 1 {
		t.Fatalf("CR/BS handling wrong: %d", c)
	}
}

// TestWrapAndScroll writes beyond the right margin and beyond the
// bottom row.
func TestWrapAndScroll(t *testing.T) {

	con, _ := newTestConsole(t)
	rows, cols := con.Size()

	// Fill one complete row; the cursor wraps to the next.
	for i := 0; i < cols; i++ {
		con.WriteString("x")
	}
	if r, c := con.Cursor(); r != 1 || c != 0 {
		t.Fatalf("no wrap: %d,%d", r, c)
	}

	// Drive the cursor off the bottom; the display scrolls and the
	// top row content moves up.
	con.Write([]byte("\x1b[25;1HBOTTOM"))
	con.WriteString("\n")
	if r, _ := con.Cursor(); r != rows-1 {
		t.Fatalf("cursor fell off the bottom: %d", r)
	}
	if con.CellAt(rows-2, 0).Glyph != 'B' {
		t.Fatalf("scroll didn't move the bottom row up")
	}
}

// TestMalformedSequences feeds the decoder rubbish and verifies it
// recovers to the ground state without moving the cursor.
func TestMalformedSequences(t *testing.T) {

	con, _ := newTestConsole(t)

	type testCase struct {
		input string
	}

	tests := []testCase{
		{"\x1b[?25hX"},           // private sequence, ignored
		{"\x1b[12\x01X"},         // control byte inside CSI
		{"\x1bZX"},               // unknown escape
		{"\x1b]0;title\x07X"},    // OSC with BEL terminator
		{"\x1b]0;title\x1b\\X"},  // OSC with ST terminator
		{"\x1b[999999999999mX"},  // oversized parameter
		{"\x1b[;;;;;;;;;;;;1mX"}, // too many parameters
	}

	for _, tc := range tests {
		con.Clear()
		con.Write([]byte(tc.input))
		if con.CellAt(0, 0).Glyph != 'X' {
			t.Fatalf("%q swallowed the trailing literal", tc.input)
		}
		if _, c := con.Cursor(); c != 1 {
			t.Fatalf("%q left the cursor misplaced", tc.input)
		}
	}
}

// TestEscapeReset ensures ESC c clears the display and restores the
// default attributes.
func TestEscapeReset(t *testing.T) {

	con, _ := newTestConsole(t)

	con.Write([]byte("\x1b[31mhello\x1bcA"))

	cell := con.CellAt(0, 0)
	if cell.Glyph != 'A' || cell.Fg != DefaultFg {
		t.Fatalf("reset didn't restore defaults: %+v", cell)
	}
}
