// Package config handles persistently storing OS configuration, using
// the BIOS NVRAM area.
//
// The record is serialised as a small JSON document, which buys us the
// compatibility rules we need for free: readers skip keys they don't
// know, and fill in defaults for keys that are missing.  A corrupt or
// absent blob never stops the machine booting - the caller gets the
// defaults, plus a flag saying so.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/halos-project/halos/bios"
)

// formatVersion is written into every blob, for future migrations.
const formatVersion = 1

// ErrCorrupt means the NVRAM blob was present but unreadable.
var ErrCorrupt = errors.New("corrupt configuration")

// Record is the canonical in-memory copy of the OS configuration.
type Record struct {

	// VideoMode selects the text mode the console starts in.
	VideoMode uint8

	// SerialConsole enables the auxiliary serial console.
	SerialConsole bool

	// SerialBaud is the data-rate of the serial console.
	SerialBaud uint32

	// Mixer holds the saved audio mixer levels, by channel name.
	Mixer map[string]uint8
}

// Default returns the configuration used when nothing is stored.
func Default() Record {
	return Record{
		VideoMode:     0,
		SerialConsole: false,
		SerialBaud:    115200,
		Mixer:         map[string]uint8{},
	}
}

// Marshal serialises a record.
func Marshal(r Record) ([]byte, error) {
	out := []byte(`{}`)

	var err error
	set := func(path string, value interface{}) {
		if err != nil {
			return
		}
		out, err = sjson.SetBytes(out, path, value)
	}

	set("version", formatVersion)
	set("video_mode", int(r.VideoMode))
	set("serial_console", r.SerialConsole)
	set("serial_baud", int(r.SerialBaud))

	// Sorted, so that equal records serialise identically.
	names := make([]string, 0, len(r.Mixer))
	for name := range r.Mixer {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set("mixer."+name, int(r.Mixer[name]))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to serialise configuration: %s", err)
	}
	return out, nil
}

// Unmarshal deserialises a record, substituting defaults for any
// missing field and ignoring any unknown field.
func Unmarshal(data []byte) (Record, error) {
	r := Default()

	if len(data) == 0 || !gjson.ValidBytes(data) {
		return r, ErrCorrupt
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return r, ErrCorrupt
	}

	if v := doc.Get("video_mode"); v.Exists() {
		r.VideoMode = uint8(v.Uint())
	}
	if v := doc.Get("serial_console"); v.Exists() {
		r.SerialConsole = v.Bool()
	}
	if v := doc.Get("serial_baud"); v.Exists() {
		r.SerialBaud = uint32(v.Uint())
	}
	doc.Get("mixer").ForEach(func(key, value gjson.Result) bool {
		r.Mixer[key.String()] = uint8(value.Uint())
		return true
	})

	return r, nil
}

// Store loads and saves the configuration record through the BIOS.
type Store struct {

	// bios gives us the NVRAM area.
	bios bios.Bios

	// logger is used for debugging and diagnostics.
	logger *slog.Logger
}

// NewStore creates a configuration store backed by the given BIOS.
func NewStore(b bios.Bios, logger *slog.Logger) *Store {
	return &Store{
		bios:   b,
		logger: logger,
	}
}

// Load returns the stored configuration.
//
// On any failure - no NVRAM, unreadable NVRAM, corrupt blob - the
// hard-coded defaults come back instead, along with a true flag so the
// caller can mention it.  Boot never fails here.
func (s *Store) Load() (Record, bool) {

	data, err := s.bios.NvramRead()
	if err != nil {
		s.logger.Warn("failed to read NVRAM",
			slog.String("error", err.Error()))
		return Default(), true
	}
	if len(data) == 0 {
		return Default(), true
	}

	rec, err := Unmarshal(data)
	if err != nil {
		s.logger.Warn("corrupt configuration in NVRAM",
			slog.Int("length", len(data)))
		return Default(), true
	}
	return rec, false
}

// Save writes the given record to NVRAM.
//
// This is the only path which mutates stored state; there is no
// autosave anywhere.
func (s *Store) Save(r Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := s.bios.NvramWrite(data); err != nil {
		return fmt.Errorf("failed to write NVRAM: %s", err)
	}
	return nil
}
