package memory

import "testing"

// TestBasics performs trivial get/set testing.
func TestBasics(t *testing.T) {

	mem := new(Memory)

	mem.Set(0x0100, 0x42)
	if mem.Get(0x0100) != 0x42 {
		t.Fatalf("failed to get the value we set")
	}

	mem.SetU16(0x0200, 0xCAFE)
	if mem.GetU16(0x0200) != 0xCAFE {
		t.Fatalf("failed to round-trip a word")
	}
	if mem.Get(0x0200) != 0xFE {
		t.Fatalf("words are not little-endian")
	}

	mem.SetRange(0x0300, 0x01, 0x02, 0x03)
	out := mem.GetRange(0x0300, 3)
	if len(out) != 3 || out[0] != 0x01 || out[2] != 0x03 {
		t.Fatalf("range round-trip failed: %v", out)
	}

	mem.FillRange(0x0400, 16, 0xFF)
	for i := 0; i < 16; i++ {
		if mem.Get(0x0400+uint16(i)) != 0xFF {
			t.Fatalf("fill failed at offset %d", i)
		}
	}
}

// TestRegionContains ensures the bounds check cannot be fooled,
// even by lengths which would wrap the 16-bit address space.
func TestRegionContains(t *testing.T) {

	r := Region{Base: 0x1000, Size: 0x0800}

	type testCase struct {
		addr     uint16
		length   uint16
		expected bool
	}

	tests := []testCase{
		{0x1000, 1, true},
		{0x1000, 0x0800, true},
		{0x17FF, 1, true},
		{0x17FF, 2, false},
		{0x0FFF, 1, false},
		{0x1800, 1, false},
		{0x0000, 1, false},
		// A length chosen to wrap around 64K must not pass.
		{0x1000, 0xFFFF, false},
		{0x17FF, 0xF000, false},
		// Zero-length pointers are fine anywhere inside.
		{0x1000, 0, true},
		{0x1800, 0, true},
		{0x1801, 0, false},
	}

	for _, tc := range tests {
		if r.Contains(tc.addr, tc.length) != tc.expected {
			t.Fatalf("Contains(0x%04X, %d) != %v", tc.addr, tc.length, tc.expected)
		}
	}
}

// TestArena exercises the stack-discipline allocator.
func TestArena(t *testing.T) {

	a := NewArena(0x8000, 0x100)

	// Zero-byte allocations are refused.
	if _, ok := a.Alloc(0); ok {
		t.Fatalf("zero-byte allocation should fail")
	}

	one, ok := a.Alloc(0x80)
	if !ok || one != 0x8000 {
		t.Fatalf("first allocation wrong: %04X %v", one, ok)
	}
	two, ok := a.Alloc(0x80)
	if !ok || two != 0x8080 {
		t.Fatalf("second allocation wrong: %04X %v", two, ok)
	}

	// Full now.
	if _, ok := a.Alloc(1); ok {
		t.Fatalf("allocation should have failed when full")
	}

	// Only the most recent allocation may be freed.
	if a.Free(one) {
		t.Fatalf("freeing out of order should fail")
	}
	if !a.Free(two) {
		t.Fatalf("freeing the top allocation should succeed")
	}
	if !a.Free(one) {
		t.Fatalf("freeing the remaining allocation should succeed")
	}
	if a.Free(one) {
		t.Fatalf("double-free should fail")
	}

	// After a reset the whole region is available again.
	_, _ = a.Alloc(0x40)
	a.Reset()
	if a.Used() != 0 || a.Available() != 0x100 {
		t.Fatalf("reset didn't restore the arena")
	}
}
