// This file implements the individual system calls.
//
// Each handler reads its arguments from the emulated registers, checks
// any pointer the application supplied against its granted region, does
// the work, and writes status/result back into A and HL.

package sys

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/halos-project/halos/fsys"
	"github.com/halos-project/halos/version"
)

// maxOpenFiles bounds the handles one application may hold.
const maxOpenFiles = 16

// SysCallExit terminates the running application.
//
// E contains the exit code.
func SysCallExit(ctx *Context) error {
	ctx.ExitCode = ctx.CPU.States.DE.Lo
	return ErrExit
}

// SysCallConsoleWrite writes a buffer of text to the console.
//
// DE is the buffer, HL its length.
func SysCallConsoleWrite(ctx *Context) error {
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	data, err := ctx.bytesIn(addr, length)
	if err != nil {
		return err
	}

	ctx.Console.Write(data)
	ctx.CPU.States.AF.Hi = StatusOK
	return nil
}

// SysCallConsoleRead blocks until a key is available and returns it.
//
// The key arrives in L; A reports EOF when the input source is
// exhausted, which only happens under test or when input is scripted.
func SysCallConsoleRead(ctx *Context) error {
	key, err := ctx.Bios.BlockForKey()
	if err != nil {
		ctx.CPU.States.AF.Hi = StatusEOF
		ctx.CPU.States.HL.SetU16(0)
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	ctx.CPU.States.HL.SetU16(uint16(key))
	return nil
}

// SysCallFileOpen opens or creates a file.
//
// B is the mode, 0 to open an existing file and 1 to create; DE points
// at the filename and HL holds its length.  The new handle is returned
// in L.
func SysCallFileOpen(ctx *Context) error {
	mode := ctx.CPU.States.BC.Hi
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	raw, err := ctx.bytesIn(addr, length)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(string(raw))

	if len(ctx.Files) >= maxOpenFiles {
		ctx.Logger.Warn("file-open refused, too many open handles",
			slog.String("path", name))
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}

	var fh fsys.Handle
	var ferr error
	switch mode {
	case 0:
		fh, ferr = ctx.FS.Open(name)
	case 1:
		fh, ferr = ctx.FS.Create(name)
	default:
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	if ferr != nil {
		ctx.Logger.Debug("file-open failed",
			slog.String("path", name),
			slog.String("error", ferr.Error()))
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}

	// Find a free handle; handle 0 is never issued.
	id := ctx.nextHandle
	for {
		if id == 0 {
			id = 1
		}
		if _, busy := ctx.Files[id]; !busy {
			break
		}
		id++
	}
	ctx.Files[id] = fh
	ctx.nextHandle = id + 1

	ctx.CPU.States.AF.Hi = StatusOK
	ctx.CPU.States.HL.SetU16(uint16(id))
	return nil
}

// SysCallFileRead reads from an open file into application memory.
//
// B is the handle, DE the destination buffer, HL its length.  The
// number of bytes read comes back in HL; A reports EOF once the file is
// exhausted.
func SysCallFileRead(ctx *Context) error {
	id := ctx.CPU.States.BC.Hi
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	// Validate the destination before touching the file.
	if !ctx.Region.Contains(addr, length) {
		return Faultf("read destination 0x%04X+%d is outside granted region %s",
			addr, length, ctx.Region)
	}

	fh, ok := ctx.Files[id]
	if !ok {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}

	buf := make([]byte, length)
	n, err := fh.Read(buf)
	if n > 0 {
		ctx.Memory.SetRange(addr, buf[:n]...)
	}
	ctx.CPU.States.HL.SetU16(uint16(n))

	switch {
	case errors.Is(err, io.EOF) && n == 0:
		ctx.CPU.States.AF.Hi = StatusEOF
	case err != nil && !errors.Is(err, io.EOF):
		ctx.CPU.States.AF.Hi = StatusError
	default:
		ctx.CPU.States.AF.Hi = StatusOK
	}
	return nil
}

// SysCallFileWrite writes application memory to an open file.
//
// B is the handle, DE the source buffer, HL its length.  The number of
// bytes written comes back in HL.
func SysCallFileWrite(ctx *Context) error {
	id := ctx.CPU.States.BC.Hi
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	data, err := ctx.bytesIn(addr, length)
	if err != nil {
		return err
	}

	fh, ok := ctx.Files[id]
	if !ok {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}

	n, werr := fh.Write(data)
	ctx.CPU.States.HL.SetU16(uint16(n))
	if werr != nil {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	return nil
}

// SysCallFileSeek moves the position of an open file.
//
// B is the handle; the absolute offset is 32-bit, with the high word in
// DE and the low word in HL.  The low word of the resulting position
// comes back in HL.
func SysCallFileSeek(ctx *Context) error {
	id := ctx.CPU.States.BC.Hi
	offset := int64(ctx.CPU.States.DE.U16())<<16 | int64(ctx.CPU.States.HL.U16())

	fh, ok := ctx.Files[id]
	if !ok {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}

	pos, err := fh.Seek(offset, io.SeekStart)
	if err != nil {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	ctx.CPU.States.HL.SetU16(uint16(pos & 0xFFFF))
	return nil
}

// SysCallFileClose closes an open file.
//
// B is the handle.
func SysCallFileClose(ctx *Context) error {
	id := ctx.CPU.States.BC.Hi

	fh, ok := ctx.Files[id]
	if !ok {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	delete(ctx.Files, id)

	if err := fh.Close(); err != nil {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	return nil
}

// SysCallFileList writes the root directory listing into application
// memory, one name per line, truncated to fit.
//
// DE is the destination buffer, HL its length; the number of bytes
// written comes back in HL.
func SysCallFileList(ctx *Context) error {
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	// Validate the destination before touching the filesystem.
	if !ctx.Region.Contains(addr, length) {
		return Faultf("list destination 0x%04X+%d is outside granted region %s",
			addr, length, ctx.Region)
	}

	entries, err := ctx.FS.List("")
	if err != nil {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}

	var sb strings.Builder
	for _, e := range entries {
		name := e.Name
		if e.Dir {
			name += "/"
		}
		sb.WriteString(name)
		sb.WriteString("\n")
	}

	out := []byte(sb.String())
	if len(out) > int(length) {
		out = out[:length]
	}
	if len(out) > 0 {
		ctx.Memory.SetRange(addr, out...)
	}
	ctx.CPU.States.AF.Hi = StatusOK
	ctx.CPU.States.HL.SetU16(uint16(len(out)))
	return nil
}

// SysCallMemAlloc allocates from the application's heap.
//
// HL is the requested size; the address comes back in HL.
func SysCallMemAlloc(ctx *Context) error {
	size := ctx.CPU.States.HL.U16()

	addr, ok := ctx.Heap.Alloc(size)
	if !ok {
		ctx.CPU.States.AF.Hi = StatusError
		ctx.CPU.States.HL.SetU16(0)
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	ctx.CPU.States.HL.SetU16(addr)
	return nil
}

// SysCallMemFree releases the most recent heap allocation.
//
// DE is the address to release.
func SysCallMemFree(ctx *Context) error {
	addr := ctx.CPU.States.DE.U16()

	if !ctx.Heap.Free(addr) {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	return nil
}

// SysCallTimeGet writes the current wall-clock time into application
// memory as seven bytes: year low, year high, month, day, hour, minute,
// second.
//
// DE is the destination buffer, which must hold at least seven bytes.
func SysCallTimeGet(ctx *Context) error {
	addr := ctx.CPU.States.DE.U16()

	now := ctx.Bios.Now()
	out := []byte{
		uint8(now.Year() & 0xFF),
		uint8(now.Year() >> 8),
		uint8(now.Month()),
		uint8(now.Day()),
		uint8(now.Hour()),
		uint8(now.Minute()),
		uint8(now.Second()),
	}
	if err := ctx.bytesOut(addr, out); err != nil {
		return err
	}
	ctx.CPU.States.AF.Hi = StatusOK
	return nil
}

// SysCallAudioSubmit hands a buffer of samples to the audio mixer.
//
// DE is the buffer, HL its length.
func SysCallAudioSubmit(ctx *Context) error {
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	data, err := ctx.bytesIn(addr, length)
	if err != nil {
		return err
	}

	if err := ctx.Bios.SubmitAudio(data); err != nil {
		ctx.CPU.States.AF.Hi = StatusError
		return nil
	}
	ctx.CPU.States.AF.Hi = StatusOK
	return nil
}

// SysCallVersion writes the OS version string into application memory,
// truncated to fit.
//
// DE is the destination buffer, HL its length; the number of bytes
// written comes back in HL.
func SysCallVersion(ctx *Context) error {
	addr := ctx.CPU.States.DE.U16()
	length := ctx.CPU.States.HL.U16()

	// Validate before writing anything.
	if !ctx.Region.Contains(addr, length) {
		return Faultf("version destination 0x%04X+%d is outside granted region %s",
			addr, length, ctx.Region)
	}

	out := []byte("HALOS " + version.GetVersionString())
	if len(out) > int(length) {
		out = out[:length]
	}
	if len(out) > 0 {
		ctx.Memory.SetRange(addr, out...)
	}
	ctx.CPU.States.AF.Hi = StatusOK
	ctx.CPU.States.HL.SetU16(uint16(len(out)))
	return nil
}
