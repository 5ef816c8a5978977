// Integration tests :)

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/halos-project/halos/bios"
	"github.com/halos-project/halos/config"
	"github.com/halos-project/halos/console"
	"github.com/halos-project/halos/fsys"
	"github.com/halos-project/halos/loader"
	"github.com/halos-project/halos/memory"
	"github.com/halos-project/halos/shell"
	"github.com/halos-project/halos/static"
	"github.com/halos-project/halos/sys"
)

// bootHeadless assembles the whole system against the headless BIOS,
// the way main does against a real one.
func bootHeadless(t *testing.T) (*shell.Shell, *bios.Headless, *fsys.MemFS) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hb := bios.NewHeadless(25, 80)
	fs := fsys.NewMemFS()
	if err := static.Install(fs); err != nil {
		t.Fatalf("install failed: %s", err)
	}

	con := console.New(hb, logger)
	store := config.NewStore(hb, logger)
	cfg, _ := store.Load()

	mem := &memory.Memory{}
	l := loader.New(mem, sys.NewTable(logger), con, hb, fs, logger)

	return shell.New(con, hb, fs, l, store, cfg, logger), hb, fs
}

// TestBootSession runs a whole scripted session: the startup script,
// an application launch, and a clean halt.
func TestBootSession(t *testing.T) {

	sh, hb, _ := bootHeadless(t)
	ctx := context.Background()

	// The shipped startup script runs the demo application.
	if err := sh.Execute(ctx, "exec startup.cmd"); err != nil {
		t.Fatalf("startup script failed: %s", err)
	}
	if !strings.Contains(hb.Screen(), "Hello, world!") {
		t.Fatalf("startup output missing:\n%s", hb.Screen())
	}

	// An interactive session afterwards.
	hb.PushInput("hello\rhalt\r")
	err := sh.Run(ctx)
	if !errors.Is(err, shell.ErrHalt) {
		t.Fatalf("expected ErrHalt, got %v", err)
	}
	if strings.Count(hb.Screen(), "Hello, world!") != 2 {
		t.Fatalf("application did not run again:\n%s", hb.Screen())
	}
}

// TestConfigSurvivesReboot saves a setting, tears the world down, and
// boots again against the same NVRAM.
func TestConfigSurvivesReboot(t *testing.T) {

	sh, hb, _ := bootHeadless(t)
	ctx := context.Background()

	hb.PushInput("config serialbaud 9600\rconfig save\rhalt\r")
	if err := sh.Run(ctx); !errors.Is(err, shell.ErrHalt) {
		t.Fatalf("expected ErrHalt, got %v", err)
	}

	// "Reboot": a new stack over the same NVRAM blob.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hb2 := bios.NewHeadless(25, 80)
	hb2.SetNvram(hb.Nvram())

	cfg, usedDefaults := config.NewStore(hb2, logger).Load()
	if usedDefaults {
		t.Fatalf("saved configuration not found")
	}
	if cfg.SerialBaud != 9600 {
		t.Fatalf("saved baud %d", cfg.SerialBaud)
	}
}
