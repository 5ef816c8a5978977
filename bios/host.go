// host.go contains the pieces shared by the drivers which run upon a
// real host system: file-backed NVRAM, a file-backed block device, the
// adjustable wall-clock, and the (fake) audio mixer.

package bios

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrNoDevice is returned when an operation names a block device we
// don't have.
var ErrNoDevice = errors.New("no such block device")

// hostState holds the device state common to the hosted drivers.
type hostState struct {

	// logger is used for debugging and diagnostics.
	logger *slog.Logger

	// nvramPath is the file our NVRAM blob lives in.
	nvramPath string

	// disk is the open disk image, if any.
	disk *os.File

	// diskBlocks is the size of the disk image, in sectors.
	diskBlocks uint64

	// clockOffset skews the host clock, so the OS can "set" the time
	// without touching the host.
	clockOffset time.Duration

	// booted records when the driver was created, for the tick counter.
	booted time.Time

	// mixers holds our fake mixer channels.
	mixers []MixerChannel
}

// newHostState opens the optional disk image and prepares the shared
// device state.
func newHostState(o Options) (*hostState, error) {

	h := &hostState{
		logger:    o.Logger,
		nvramPath: o.NvramPath,
		booted:    time.Now(),
		mixers: []MixerChannel{
			{Name: "master", Level: 192, Max: 255},
			{Name: "left", Level: 255, Max: 255},
			{Name: "right", Level: 255, Max: 255},
		},
	}

	if o.DiskImage != "" {
		f, err := os.OpenFile(o.DiskImage, os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk image %s: %s", o.DiskImage, err)
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stat disk image %s: %s", o.DiskImage, err)
		}
		h.disk = f
		h.diskBlocks = uint64(fi.Size()) / SectorSize
	}

	return h, nil
}

// close releases the disk image, if we opened one.
func (h *hostState) close() {
	if h.disk != nil {
		h.disk.Close()
		h.disk = nil
	}
}

func (h *hostState) Now() time.Time {
	return time.Now().Add(h.clockOffset)
}

func (h *hostState) SetNow(t time.Time) error {
	h.clockOffset = time.Until(t)
	return nil
}

func (h *hostState) Ticks() uint64 {
	return uint64(time.Since(h.booted) / time.Millisecond)
}

func (h *hostState) NvramRead() ([]byte, error) {
	if h.nvramPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(h.nvramPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (h *hostState) NvramWrite(data []byte) error {
	if h.nvramPath == "" {
		return fmt.Errorf("no NVRAM backing file configured")
	}
	return os.WriteFile(h.nvramPath, data, 0o600)
}

func (h *hostState) BlockDevices() []DeviceInfo {
	if h.disk == nil {
		return nil
	}
	return []DeviceInfo{
		{
			Name:      h.disk.Name(),
			BlockSize: SectorSize,
			NumBlocks: h.diskBlocks,
		},
	}
}

func (h *hostState) BlockRead(device uint8, index uint64, buf []byte) error {
	if h.disk == nil || device != 0 {
		return ErrNoDevice
	}
	if _, err := h.disk.ReadAt(buf, int64(index)*SectorSize); err != nil {
		return fmt.Errorf("block read failed: %s", err)
	}
	return nil
}

func (h *hostState) BlockWrite(device uint8, index uint64, data []byte) error {
	if h.disk == nil || device != 0 {
		return ErrNoDevice
	}
	if _, err := h.disk.WriteAt(data, int64(index)*SectorSize); err != nil {
		return fmt.Errorf("block write failed: %s", err)
	}
	return nil
}

func (h *hostState) MixerChannels() []MixerChannel {
	out := make([]MixerChannel, len(h.mixers))
	copy(out, h.mixers)
	return out
}

func (h *hostState) SetMixerLevel(name string, level uint8) error {
	for i := range h.mixers {
		if h.mixers[i].Name == name {
			h.mixers[i].Level = level
			return nil
		}
	}
	return fmt.Errorf("no mixer channel named '%s'", name)
}

// SubmitAudio discards the samples; the hosted drivers have no audio
// hardware, but applications still get the submission semantics they
// expect.
func (h *hostState) SubmitAudio(samples []byte) error {
	h.logger.Debug("SubmitAudio",
		slog.Int("bytes", len(samples)))
	return nil
}
