// This file implements parsing of the relocatable application
// container.
//
// A container is a small header, the machine-code image, then a table
// of relocation offsets:
//
//	offset  size  meaning
//	     0     4  magic, "HAPP"
//	     4     1  container format version, currently 1
//	     5     1  architecture, 1 = Z80
//	     6     2  entry point, as an offset into the image
//	     8     2  image length, in bytes
//	    10     2  zero-initialised (BSS) size
//	    12     2  stack size
//	    14     2  heap size
//	    16     2  relocation count
//
// All multi-byte fields are little-endian.  Each relocation is a
// two-byte offset into the image; the 16-bit word at that offset has
// the load address added to it once the base is known.

package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of the container header, in bytes.
const HeaderSize = 18

// ContainerVersion is the container format version we understand.
const ContainerVersion = 1

// ArchZ80 identifies Z80 machine-code in the architecture field.
const ArchZ80 = 1

// containerMagic starts every valid container.
var containerMagic = []byte("HAPP")

// ErrInvalidContainer is returned when a file is not a well-formed
// application container.
var ErrInvalidContainer = errors.New("invalid application container")

// ErrInsufficientMemory is returned when the program area cannot hold
// an application's footprint.
var ErrInsufficientMemory = errors.New("insufficient memory")

// ErrRelocationFailure is returned when a relocation offset points
// outside the image.
var ErrRelocationFailure = errors.New("relocation failure")

// Container is a parsed application container, not yet placed in
// memory.
type Container struct {

	// Entry is the entry point, as an offset into the image.
	Entry uint16

	// Image is the machine-code image.
	Image []byte

	// BSS is the size of the zero-initialised area following the
	// image.
	BSS uint16

	// Stack is the size of the stack area.
	Stack uint16

	// Heap is the size of the heap area.
	Heap uint16

	// Relocs holds the relocation offsets, each pointing at a 16-bit
	// word within the image.
	Relocs []uint16
}

// Footprint returns the total memory the application needs, which may
// exceed what a 16-bit field can describe.
func (c *Container) Footprint() uint32 {
	return uint32(len(c.Image)) + uint32(c.BSS) + uint32(c.Stack) + uint32(c.Heap)
}

// ParseContainer validates a container file and returns its parsed
// form.
func ParseContainer(data []byte) (*Container, error) {

	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a header",
			ErrInvalidContainer, len(data))
	}
	if !bytes.Equal(data[0:4], containerMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidContainer)
	}
	if data[4] != ContainerVersion {
		return nil, fmt.Errorf("%w: unknown format version %d",
			ErrInvalidContainer, data[4])
	}
	if data[5] != ArchZ80 {
		return nil, fmt.Errorf("%w: unknown architecture %d",
			ErrInvalidContainer, data[5])
	}

	entry := binary.LittleEndian.Uint16(data[6:8])
	imageLen := binary.LittleEndian.Uint16(data[8:10])
	bss := binary.LittleEndian.Uint16(data[10:12])
	stack := binary.LittleEndian.Uint16(data[12:14])
	heap := binary.LittleEndian.Uint16(data[14:16])
	relocCount := binary.LittleEndian.Uint16(data[16:18])

	expected := HeaderSize + int(imageLen) + int(relocCount)*2
	if len(data) != expected {
		return nil, fmt.Errorf("%w: %d bytes but the header describes %d",
			ErrInvalidContainer, len(data), expected)
	}
	if imageLen == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidContainer)
	}
	if entry >= imageLen {
		return nil, fmt.Errorf("%w: entry 0x%04X is beyond the image",
			ErrInvalidContainer, entry)
	}
	if stack < 2 {
		return nil, fmt.Errorf("%w: stack of %d bytes is too small",
			ErrInvalidContainer, stack)
	}

	image := append([]byte{}, data[HeaderSize:HeaderSize+int(imageLen)]...)

	relocs := make([]uint16, relocCount)
	off := HeaderSize + int(imageLen)
	for i := range relocs {
		relocs[i] = binary.LittleEndian.Uint16(data[off : off+2])
		off += 2
	}

	return &Container{
		Entry:  entry,
		Image:  image,
		BSS:    bss,
		Stack:  stack,
		Heap:   heap,
		Relocs: relocs,
	}, nil
}
