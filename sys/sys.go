// Package sys implements the system-call table which forms the ABI
// between the OS and loaded applications.
//
// The table is fixed and versioned, and must stay append-only: a binary
// compiled against version N must keep working against every later
// version.  Applications invoke a call by loading the call number into
// the C register and executing "RST 08"; the OS traps the vector,
// services the call, and resumes them.
//
// Register convention:
//
//	C  - call number
//	B  - file handle, or open mode
//	DE - pointer argument
//	HL - length or value argument
//
//	A  - status on return: 0 OK, 1 EOF, 0xFF error
//	HL - result value, where there is one
//
// Every pointer/length pair an application supplies is validated
// against the memory region it was granted at launch, before the OS
// touches a byte.  That check is the privilege boundary and is never
// skipped.
package sys

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/koron-go/z80"

	"github.com/halos-project/halos/bios"
	"github.com/halos-project/halos/console"
	"github.com/halos-project/halos/fsys"
	"github.com/halos-project/halos/memory"
)

// TableVersion is the version of the call table this build exposes.
const TableVersion = 1

// Call numbers.  Append-only; renumbering breaks every binary in the
// wild.
const (
	CallExit         = 0
	CallConsoleWrite = 1
	CallConsoleRead  = 2
	CallFileOpen     = 3
	CallFileRead     = 4
	CallFileWrite    = 5
	CallFileSeek     = 6
	CallFileClose    = 7
	CallFileList     = 8
	CallMemAlloc     = 9
	CallMemFree      = 10
	CallTimeGet      = 11
	CallAudioSubmit  = 12
	CallVersion      = 13
)

// Status bytes returned in the A register.
const (
	StatusOK    = 0x00
	StatusEOF   = 0x01
	StatusError = 0xFF
)

// ErrExit is used to handle an application invoking the exit call.
//
// It should be handled and expected by callers.
var ErrExit = errors.New("EXIT")

// Fault is the error type produced when an application violates the
// call contract - a bad call number, or a pointer outside its granted
// region.  The run is terminated but the OS carries on.
type Fault struct {
	// Cause is a human-readable description of the violation.
	Cause string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return "application fault: " + f.Cause
}

// Faultf creates a Fault from a format string.
func Faultf(format string, args ...interface{}) *Fault {
	return &Fault{Cause: fmt.Sprintf(format, args...)}
}

// HandlerFunc is the signature of a system-call implementation.
type HandlerFunc func(ctx *Context) error

// Handler contains details of a specific call we implement.
//
// While we mostly need a "number to handler" mapping, having a name is
// useful for the logs we produce.
type Handler struct {

	// Name contains the human-readable name of the call.
	Name string

	// Handler contains the function which services the call.
	Handler HandlerFunc
}

// Context carries the state one running application sees through the
// call table: its CPU, the RAM, the region it was granted, and borrowed
// references to the OS services the calls delegate to.
type Context struct {

	// CPU is the processor the application is executing upon.
	CPU *z80.CPU

	// Memory is the system RAM.
	Memory *memory.Memory

	// Region bounds the memory granted to this application.
	Region memory.Region

	// Heap allocates from the application's heap space.
	Heap *memory.Arena

	// Console is where console-write output goes; shared with the
	// shell, so output interleaves on one buffer.
	Console *console.Console

	// Bios supplies keyboard input, the clock, and audio.
	Bios bios.Bios

	// FS is the filesystem capability.
	FS fsys.Filesystem

	// Files maps the small integer handles we hand out to open files.
	Files map[uint8]fsys.Handle

	// nextHandle is the next file handle to hand out.
	nextHandle uint8

	// ExitCode records the value passed to the exit call.
	ExitCode uint8

	// Logger is used for debugging and diagnostics.
	Logger *slog.Logger
}

// NewContext prepares the per-run state for one application.
func NewContext(cpu *z80.CPU, mem *memory.Memory, region memory.Region, heap *memory.Arena,
	con *console.Console, b bios.Bios, fs fsys.Filesystem, logger *slog.Logger) *Context {
	return &Context{
		CPU:        cpu,
		Memory:     mem,
		Region:     region,
		Heap:       heap,
		Console:    con,
		Bios:       b,
		FS:         fs,
		Files:      make(map[uint8]fsys.Handle),
		nextHandle: 1,
		Logger:     logger,
	}
}

// CloseFiles closes any file handles the application left open.
func (ctx *Context) CloseFiles() {
	for id, fh := range ctx.Files {
		ctx.Logger.Debug("closing leaked file handle",
			slog.Int("handle", int(id)))
		fh.Close()
	}
	ctx.Files = make(map[uint8]fsys.Handle)
}

// bytesIn validates an application-supplied pointer/length pair and
// returns a copy of that memory.
func (ctx *Context) bytesIn(addr uint16, length uint16) ([]byte, error) {
	if !ctx.Region.Contains(addr, length) {
		return nil, Faultf("read of 0x%04X+%d is outside granted region %s",
			addr, length, ctx.Region)
	}
	return ctx.Memory.GetRange(addr, int(length)), nil
}

// bytesOut validates an application-supplied destination and copies
// data into it.
func (ctx *Context) bytesOut(addr uint16, data []byte) error {
	if !ctx.Region.Contains(addr, uint16(len(data))) {
		return Faultf("write of 0x%04X+%d is outside granted region %s",
			addr, len(data), ctx.Region)
	}
	ctx.Memory.SetRange(addr, data...)
	return nil
}

// Table is the versioned system-call table.
//
// It is built once at boot and never mutated afterwards; applications
// only ever hold a borrowed reference.
type Table struct {

	// entries holds the calls, indexed by call number.
	entries []Handler

	// logger is used for debugging and diagnostics.
	logger *slog.Logger
}

// NewTable creates and populates the call table.
func NewTable(logger *slog.Logger) *Table {

	entries := make([]Handler, 14)
	entries[CallExit] = Handler{"SYS_EXIT", SysCallExit}
	entries[CallConsoleWrite] = Handler{"CON_WRITE", SysCallConsoleWrite}
	entries[CallConsoleRead] = Handler{"CON_READ", SysCallConsoleRead}
	entries[CallFileOpen] = Handler{"FILE_OPEN", SysCallFileOpen}
	entries[CallFileRead] = Handler{"FILE_READ", SysCallFileRead}
	entries[CallFileWrite] = Handler{"FILE_WRITE", SysCallFileWrite}
	entries[CallFileSeek] = Handler{"FILE_SEEK", SysCallFileSeek}
	entries[CallFileClose] = Handler{"FILE_CLOSE", SysCallFileClose}
	entries[CallFileList] = Handler{"FILE_LIST", SysCallFileList}
	entries[CallMemAlloc] = Handler{"MEM_ALLOC", SysCallMemAlloc}
	entries[CallMemFree] = Handler{"MEM_FREE", SysCallMemFree}
	entries[CallTimeGet] = Handler{"TIME_GET", SysCallTimeGet}
	entries[CallAudioSubmit] = Handler{"AUDIO_SUBMIT", SysCallAudioSubmit}
	entries[CallVersion] = Handler{"OS_VERSION", SysCallVersion}

	return &Table{
		entries: entries,
		logger:  logger,
	}
}

// Version returns the version of the table.
func (t *Table) Version() uint8 {
	return TableVersion
}

// Count returns the number of calls in the table.
func (t *Table) Count() uint8 {
	return uint8(len(t.entries))
}

// Dispatch services one trapped system call.
//
// An out-of-range call number is rejected here, before any lookup, and
// becomes a fault; it is never dereferenced.
func (t *Table) Dispatch(ctx *Context, index uint8) error {

	if int(index) >= len(t.entries) {
		t.logger.Error("syscall index out of range",
			slog.Int("syscall", int(index)),
			slog.Int("count", len(t.entries)))
		return Faultf("call number %d is beyond table end (%d entries)",
			index, len(t.entries))
	}

	entry := t.entries[index]

	t.logger.Debug("SysCall",
		slog.String("name", entry.Name),
		slog.Int("syscall", int(index)),
		slog.String("syscallHex", fmt.Sprintf("0x%02X", index)))

	return entry.Handler(ctx)
}
