// Package memory provides the 64k of RAM within which applications are
// loaded and executed.
//
// In addition to the flat RAM array this package contains the Region
// type, which describes the bounds of the memory granted to a running
// application, and the Arena allocator which hands out heap space from
// within such a region with a stack-like discipline.
package memory

import "fmt"

// Memory provides 64K bytes array memory.
type Memory struct {
	buf [65536]uint8
}

// Set sets a byte at addr of memory.
func (m *Memory) Set(addr uint16, value uint8) {
	m.buf[addr] = value
}

// Get returns a byte at addr of memory.
func (m *Memory) Get(addr uint16) uint8 {
	return m.buf[addr]
}

// GetU16 returns a word from the given address of memory.
func (m *Memory) GetU16(addr uint16) uint16 {
	l := m.Get(addr)
	h := m.Get(addr + 1)
	return (uint16(h) << 8) | uint16(l)
}

// SetU16 sets a word at the given address of memory.
func (m *Memory) SetU16(addr uint16, value uint16) {
	m.Set(addr, uint8(value&0xFF))
	m.Set(addr+1, uint8(value>>8))
}

// SetRange copies bytes from the given data to the specified
// starting address in RAM.
func (m *Memory) SetRange(addr uint16, data ...uint8) {
	copy(m.buf[int(addr):int(addr)+len(data)], data)
}

// FillRange fills an area of memory with the given byte.
func (m *Memory) FillRange(addr uint16, size int, char uint8) {
	for size > 0 {
		m.buf[addr] = char
		addr++
		size--
	}
}

// GetRange returns a copy of the contents of the given range.
func (m *Memory) GetRange(addr uint16, size int) []uint8 {
	var ret []uint8
	for size > 0 {
		ret = append(ret, m.buf[addr])
		addr++
		size--
	}
	return ret
}

// Region describes a contiguous area of RAM which has been granted to a
// running application.
//
// The system-call layer uses this to validate every pointer/length pair
// an application supplies, before the OS acts upon it.
type Region struct {
	// Base is the first address inside the region.
	Base uint16

	// Size is the length of the region, in bytes.
	Size uint16
}

// End returns the first address beyond the region.
func (r Region) End() uint32 {
	return uint32(r.Base) + uint32(r.Size)
}

// Contains reports whether the given pointer/length pair lies entirely
// within the region.
//
// The arithmetic is performed in 32-bits so that a hostile length cannot
// wrap around the address space and sneak past the check.
func (r Region) Contains(addr uint16, length uint16) bool {
	if length == 0 {
		return addr >= r.Base && uint32(addr) <= r.End()
	}
	if addr < r.Base {
		return false
	}
	return uint32(addr)+uint32(length) <= r.End()
}

// String returns a human-readable description of the region.
func (r Region) String() string {
	return fmt.Sprintf("0x%04X-0x%04X (%d bytes)", r.Base, r.End()-1, r.Size)
}

// Arena hands out memory from within a fixed region, with a stack-like
// allocation discipline: allocations always come from the low watermark,
// and only the most recent allocation may be released.
//
// This is deliberately simple.  Because regions are created and torn
// down wholesale around each application run there is no fragmentation
// to manage.
type Arena struct {
	// base is the first address the arena may hand out.
	base uint16

	// top is the first address beyond the arena.
	top uint32

	// next is the address the next allocation will receive.
	next uint32

	// allocs records the address of every live allocation, in order.
	allocs []uint16
}

// NewArena creates an arena serving the given range.
func NewArena(base uint16, size uint16) *Arena {
	return &Arena{
		base: base,
		top:  uint32(base) + uint32(size),
		next: uint32(base),
	}
}

// Alloc returns the address of a fresh allocation of the given size, or
// false if the arena cannot satisfy the request.
func (a *Arena) Alloc(size uint16) (uint16, bool) {
	if size == 0 {
		return 0, false
	}
	if a.next+uint32(size) > a.top {
		return 0, false
	}
	addr := uint16(a.next)
	a.next += uint32(size)
	a.allocs = append(a.allocs, addr)
	return addr, true
}

// Free releases the most recent allocation.
//
// The supplied address must match that allocation; releasing anything
// else is an error, which keeps the stack discipline honest.
func (a *Arena) Free(addr uint16) bool {
	if len(a.allocs) == 0 {
		return false
	}
	last := a.allocs[len(a.allocs)-1]
	if last != addr {
		return false
	}
	a.allocs = a.allocs[:len(a.allocs)-1]
	a.next = uint32(addr)
	return true
}

// Reset releases every allocation at once.
func (a *Arena) Reset() {
	a.allocs = nil
	a.next = uint32(a.base)
}

// Used returns the number of bytes currently allocated.
func (a *Arena) Used() int {
	return int(a.next) - int(a.base)
}

// Available returns the number of bytes remaining.
func (a *Arena) Available() int {
	return int(a.top) - int(a.next)
}
