// Package loader places relocatable application containers into the
// program area and runs them on the emulated CPU.
//
// The OS is single-tasking: at most one application is resident at a
// time, and the shell is suspended until it exits.  Whatever the exit
// path - a clean exit call, a HALT, or a fault - the program area is
// reclaimed and leaked file handles are closed before control returns.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/koron-go/z80"

	"github.com/halos-project/halos/bios"
	"github.com/halos-project/halos/console"
	"github.com/halos-project/halos/fsys"
	"github.com/halos-project/halos/memory"
	"github.com/halos-project/halos/sys"
)

// The low-memory scaffolding the loader maintains.
const (
	// HaltAddr holds a HALT opcode; the launch stack has this address
	// pre-pushed, so a bare RET from an application is a clean exit.
	HaltAddr = 0x0000

	// VectorAddr is the system-call vector.  Applications CALL here;
	// the emulator breakpoints on it and the OS services the call.
	VectorAddr = 0x0008

	// TableInfoAddr holds two bytes describing the call table: its
	// version, then its entry count.  HL points here at entry.
	TableInfoAddr = 0x0010

	// ArgsAddr holds the command-line arguments as a length-prefixed
	// string.  DE points here at entry.
	ArgsAddr = 0x0080

	// MaxArgs is the longest argument string we pass.
	MaxArgs = 127

	// ArenaBase is the first address of the program area.
	ArenaBase = 0x0100

	// ArenaTop is the first address beyond the program area.
	ArenaTop = 0xF000
)

// ErrResident is returned when a load is attempted while an
// application is already resident.
var ErrResident = errors.New("an application is already resident")

// ExitReason describes how an application run ended.
type ExitReason struct {

	// Faulted is true when the application violated the system-call
	// contract, or the CPU failed.
	Faulted bool

	// Code is the exit code, for a non-faulted run.
	Code uint8

	// Cause describes the fault, for a faulted run.
	Cause string
}

// String returns a human-readable form of the exit.
func (e ExitReason) String() string {
	if e.Faulted {
		return "faulted: " + e.Cause
	}
	return fmt.Sprintf("exit %d", e.Code)
}

// Program is a loaded application, ready to run.
type Program struct {

	// Name is the path the application was loaded from.
	Name string

	// Base is the load address.
	Base uint16

	// Entry is the absolute entry point.
	Entry uint16

	// Region bounds the memory granted to the application.
	Region memory.Region

	// Heap allocates from the application's heap area.
	Heap *memory.Arena

	// sp is the initial stack pointer.
	sp uint16
}

// Loader owns the program area and the machinery for running
// applications within it.
type Loader struct {

	// mem is the system RAM.
	mem *memory.Memory

	// table is the system-call table.
	table *sys.Table

	// con is the console applications write to.
	con *console.Console

	// bios supplies input, the clock, and audio.
	bios bios.Bios

	// fs is the filesystem applications see.
	fs fsys.Filesystem

	// arena hands out space within the program area.
	arena *memory.Arena

	// resident is true while an application occupies the program
	// area.
	resident bool

	// logger is used for debugging and diagnostics.
	logger *slog.Logger
}

// New creates a loader managing the program area of the given RAM.
func New(mem *memory.Memory, table *sys.Table, con *console.Console,
	b bios.Bios, fs fsys.Filesystem, logger *slog.Logger) *Loader {

	l := &Loader{
		mem:    mem,
		table:  table,
		con:    con,
		bios:   b,
		fs:     fs,
		arena:  memory.NewArena(ArenaBase, ArenaTop-ArenaBase),
		logger: logger,
	}
	l.fixupRAM()
	return l
}

// fixupRAM installs the low-memory scaffolding.
func (l *Loader) fixupRAM() {

	// HALT at zero, so a RET through the pre-pushed return address
	// stops the CPU.
	l.mem.Set(HaltAddr, 0x76)

	// RET at the vector; never actually executed, as the emulator
	// breakpoints on the address, but harmless if single-stepped.
	l.mem.Set(VectorAddr, 0xC9)

	// The call-table description.
	l.mem.Set(TableInfoAddr, l.table.Version())
	l.mem.Set(TableInfoAddr+1, l.table.Count())
}

// Resident reports whether an application currently occupies the
// program area.
func (l *Loader) Resident() bool {
	return l.resident
}

// Available returns the free bytes of the program area.
func (l *Loader) Available() int {
	return l.arena.Available()
}

// Load places a parsed container into the program area.
//
// On any failure the program area is left exactly as it was.
func (l *Loader) Load(c *Container, name string, args string) (*Program, error) {

	if l.resident {
		return nil, ErrResident
	}

	footprint := c.Footprint()
	if footprint > 0xFFFF {
		return nil, fmt.Errorf("%w: footprint %d bytes", ErrInsufficientMemory, footprint)
	}

	// Relocate a copy of the image first; a bad relocation table must
	// not leave a half-poked program area.
	base, ok := l.arena.Alloc(uint16(footprint))
	if !ok {
		return nil, fmt.Errorf("%w: footprint %d bytes, %d free",
			ErrInsufficientMemory, footprint, l.arena.Available())
	}

	image := append([]byte{}, c.Image...)
	for _, off := range c.Relocs {
		if int(off)+1 >= len(image) {
			l.arena.Free(base)
			return nil, fmt.Errorf("%w: offset 0x%04X is beyond the image",
				ErrRelocationFailure, off)
		}
		word := uint16(image[off]) | uint16(image[off+1])<<8
		word += base
		image[off] = uint8(word & 0xFF)
		image[off+1] = uint8(word >> 8)
	}

	// Image, then zeroed BSS.
	l.mem.SetRange(base, image...)
	if c.BSS > 0 {
		l.mem.FillRange(base+uint16(len(image)), int(c.BSS), 0x00)
	}

	// Arguments, as a length-prefixed string.
	if len(args) > MaxArgs {
		args = args[:MaxArgs]
	}
	l.mem.Set(ArgsAddr, uint8(len(args)))
	if len(args) > 0 {
		l.mem.SetRange(ArgsAddr+1, []byte(args)...)
	}

	// The stack sits above the BSS; the heap claims the rest of the
	// footprint above it.
	stackTop := base + uint16(len(image)) + c.BSS + c.Stack
	heap := memory.NewArena(stackTop, c.Heap)

	p := &Program{
		Name:   name,
		Base:   base,
		Entry:  base + c.Entry,
		Region: memory.Region{Base: base, Size: uint16(footprint)},
		Heap:   heap,
		sp:     stackTop,
	}

	l.resident = true

	l.logger.Debug("loaded application",
		slog.String("name", name),
		slog.String("region", p.Region.String()),
		slog.Int("entry", int(p.Entry)),
		slog.Int("relocations", len(c.Relocs)))

	return p, nil
}

// Run executes a loaded program until it exits, faults, or the context
// is cancelled.
//
// The program area is reclaimed before Run returns, whatever the exit
// path; the program may not be run again.
func (l *Loader) Run(ctx context.Context, p *Program) ExitReason {

	defer func() {
		l.arena.Free(p.Base)
		l.resident = false
	}()

	cpu := &z80.CPU{
		States: z80.States{
			SPR: z80.SPR{
				PC: p.Entry,
			},
		},
		Memory: l.mem,
		IO:     l,
	}
	cpu.SP = p.sp

	// A bare RET from the application lands on the HALT at zero.
	cpu.SP -= 2
	l.mem.SetU16(cpu.SP, HaltAddr)

	// Entry register contract: HL describes the call table, DE the
	// arguments.
	cpu.States.HL.SetU16(TableInfoAddr)
	cpu.States.DE.SetU16(ArgsAddr)

	cpu.BreakPoints = map[uint16]struct{}{}
	cpu.BreakPoints[VectorAddr] = struct{}{}

	sctx := sys.NewContext(cpu, l.mem, p.Region, p.Heap, l.con, l.bios, l.fs, l.logger)
	defer sctx.CloseFiles()

	for {

		err := cpu.Run(ctx)

		// No error means the CPU hit a HALT, which is a clean exit.
		if err == nil {
			return ExitReason{Code: sctx.ExitCode}
		}

		if err != z80.ErrBreakPoint {
			return ExitReason{
				Faulted: true,
				Cause:   fmt.Sprintf("cpu error: %s", err),
			}
		}

		// A trapped system call; the number is in C.
		derr := l.table.Dispatch(sctx, cpu.States.BC.Lo)

		if derr != nil {
			if errors.Is(derr, sys.ErrExit) {
				return ExitReason{Code: sctx.ExitCode}
			}

			var fault *sys.Fault
			if errors.As(derr, &fault) {
				l.logger.Warn("application faulted",
					slog.String("name", p.Name),
					slog.String("cause", fault.Cause))
				return ExitReason{Faulted: true, Cause: fault.Cause}
			}

			return ExitReason{Faulted: true, Cause: derr.Error()}
		}

		// Return from the call: pop the address the CALL pushed and
		// resume there.
		cpu.PC = l.mem.GetU16(cpu.SP)
		cpu.SP += 2
	}
}

// LoadAndRun reads a container from the filesystem, loads it, and runs
// it to completion.
func (l *Loader) LoadAndRun(ctx context.Context, name string, args string) (ExitReason, error) {

	fh, err := l.fs.Open(name)
	if err != nil {
		return ExitReason{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	data, err := io.ReadAll(fh)
	fh.Close()
	if err != nil {
		return ExitReason{}, fmt.Errorf("failed to read %s: %w", name, err)
	}

	c, err := ParseContainer(data)
	if err != nil {
		return ExitReason{}, fmt.Errorf("%s: %w", name, err)
	}

	p, err := l.Load(c, name, strings.TrimSpace(args))
	if err != nil {
		return ExitReason{}, fmt.Errorf("failed to load %s: %w", name, err)
	}

	return l.Run(ctx, p), nil
}

// In handles a read of a Z80 port; we decode no ports, so every read
// returns zero.
func (l *Loader) In(addr uint8) uint8 {
	return 0
}

// Out handles a write of a Z80 port; writes are discarded.
func (l *Loader) Out(addr uint8, value uint8) {
	l.logger.Debug("ignoring write to I/O port",
		slog.Int("port", int(addr)),
		slog.Int("value", int(value)))
}
