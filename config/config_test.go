package config

import (
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/halos-project/halos/bios"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestRoundTrip confirms save-then-load returns an equal record.
func TestRoundTrip(t *testing.T) {

	type testCase struct {
		name string
		rec  Record
	}

	tests := []testCase{
		{"defaults", Default()},
		{"modified", Record{
			VideoMode:     3,
			SerialConsole: true,
			SerialBaud:    9600,
			Mixer:         map[string]uint8{"master": 100, "left": 50},
		}},
		{"empty mixer", Record{
			VideoMode:  1,
			SerialBaud: 115200,
			Mixer:      map[string]uint8{},
		}},
	}

	for _, tc := range tests {
		hb := bios.NewHeadless(25, 80)
		store := NewStore(hb, testLogger())

		if err := store.Save(tc.rec); err != nil {
			t.Fatalf("%s: save failed: %s", tc.name, err)
		}

		got, usedDefaults := store.Load()
		if usedDefaults {
			t.Fatalf("%s: load claimed defaults after a save", tc.name)
		}
		if !reflect.DeepEqual(got, tc.rec) {
			t.Fatalf("%s: round-trip mismatch:\n%+v\n%+v", tc.name, tc.rec, got)
		}
	}
}

// TestLoadDefaults confirms the documented recovery behaviour: absent,
// short, and corrupt blobs all produce the defaults, with the flag set,
// and never an error.
func TestLoadDefaults(t *testing.T) {

	type testCase struct {
		name  string
		nvram []byte
	}

	tests := []testCase{
		{"absent", nil},
		{"empty", []byte{}},
		{"short", []byte{'{'}},
		{"not JSON", []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{"wrong type", []byte(`[1,2,3]`)},
		{"truncated", []byte(`{"video_mode": 3, "serial`)},
	}

	for _, tc := range tests {
		hb := bios.NewHeadless(25, 80)
		if tc.nvram != nil {
			hb.SetNvram(tc.nvram)
		}
		store := NewStore(hb, testLogger())

		got, usedDefaults := store.Load()
		if !usedDefaults {
			t.Fatalf("%s: defaults flag not set", tc.name)
		}
		if !reflect.DeepEqual(got, Default()) {
			t.Fatalf("%s: didn't get the defaults: %+v", tc.name, got)
		}
	}

	// A failing NVRAM device behaves the same way.
	hb := bios.NewHeadless(25, 80)
	hb.FailNvram(errors.New("bus error"))
	store := NewStore(hb, testLogger())
	if _, usedDefaults := store.Load(); !usedDefaults {
		t.Fatalf("NVRAM failure didn't fall back to defaults")
	}
}

// TestCompatibility ensures unknown keys are skipped and missing keys
// get their defaults - both directions of format evolution.
func TestCompatibility(t *testing.T) {

	// A blob from "the future", with keys we have never heard of.
	blob := []byte(`{"version": 9, "video_mode": 2, "holograms": true, "mixer": {"master": 7}, "extra": {"a": 1}}`)

	rec, err := Unmarshal(blob)
	if err != nil {
		t.Fatalf("future blob failed to load: %s", err)
	}
	if rec.VideoMode != 2 {
		t.Fatalf("known field not honoured")
	}
	if rec.Mixer["master"] != 7 {
		t.Fatalf("mixer level not honoured")
	}

	// Missing fields pick up defaults.
	if rec.SerialBaud != Default().SerialBaud {
		t.Fatalf("missing field didn't default")
	}
}
