// entry point

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/halos-project/halos/bios"
	"github.com/halos-project/halos/config"
	"github.com/halos-project/halos/console"
	"github.com/halos-project/halos/fsys"
	"github.com/halos-project/halos/loader"
	"github.com/halos-project/halos/memory"
	"github.com/halos-project/halos/shell"
	"github.com/halos-project/halos/static"
	"github.com/halos-project/halos/sys"
	"github.com/halos-project/halos/version"
)

func main() {

	// Parse the command-line flags.
	driver := flag.String("bios", "ansi",
		"The BIOS driver to use ("+strings.Join(bios.GetDrivers(), ", ")+").")
	root := flag.String("root", ".",
		"The host directory to expose as the filesystem.")
	nvram := flag.String("nvram", "halos.nvram",
		"The host file backing the NVRAM area.")
	image := flag.String("image", "",
		"An optional disk image to attach as a block device.")
	script := flag.String("script", "startup.cmd",
		"The script to run at boot, when present.")
	showVersion := flag.Bool("version", false,
		"Show our version and exit.")
	flag.Parse()

	if *showVersion {
		fmt.Print(version.GetVersionBanner())
		return
	}

	// Setup our logging level - default to warnings or higher
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)

	// But show "everything" if $DEBUG is non-empty
	if os.Getenv("DEBUG") != "" {
		lvl.Set(slog.LevelDebug)
	}

	//
	// Create our logging handler, using the level we've just setup
	//
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))

	//
	// Bring up the BIOS.
	//
	b, err := bios.New(*driver, bios.Options{
		Logger:    log,
		NvramPath: *nvram,
		DiskImage: *image,
	})
	if err != nil {
		fmt.Printf("Error starting BIOS driver %s: %s\n", *driver, err)
		os.Exit(1)
	}
	defer b.TearDown()

	//
	// Load the configuration; a missing or corrupt NVRAM area means
	// defaults, never a failed boot.
	//
	store := config.NewStore(b, log)
	cfg, usedDefaults := store.Load()

	// Apply any saved mixer levels.
	for name, level := range cfg.Mixer {
		if err := b.SetMixerLevel(name, level); err != nil {
			log.Warn("failed to apply saved mixer level",
				slog.String("channel", name),
				slog.String("error", err.Error()))
		}
	}

	//
	// Bring up the console and greet the user.
	//
	con := console.New(b, log)
	con.Clear()
	con.WriteString("\033[96m" + strings.TrimSpace(version.GetVersionBanner()) + "\033[0m\r\n")
	if usedDefaults {
		con.WriteString("\033[93mNo saved configuration; using defaults.\033[0m\r\n")
	}
	con.WriteString("Type help for a list of commands.\r\n\r\n")

	//
	// The filesystem, with our shipped files installed on first boot.
	//
	fs := fsys.NewDirFS(*root)
	if err := static.Install(fs); err != nil {
		log.Warn("failed to install shipped files",
			slog.String("error", err.Error()))
	}

	//
	// The RAM, system-call table, application loader, and shell.
	//
	mem := &memory.Memory{}
	l := loader.New(mem, sys.NewTable(log), con, b, fs, log)
	sh := shell.New(con, b, fs, l, store, cfg, log)

	ctx := context.Background()

	//
	// Run the startup script, when we have one.
	//
	if *script != "" {
		if fh, ferr := fs.Open(*script); ferr == nil {
			fh.Close()
			if serr := sh.Execute(ctx, "exec \""+*script+"\""); serr != nil {
				if errors.Is(serr, shell.ErrHalt) {
					return
				}
				con.WriteString(fmt.Sprintf("Error: %s\r\n", serr))
			}
		}
	}

	//
	// Read and execute commands until halt.
	//
	err = sh.Run(ctx)
	if err != nil && !errors.Is(err, shell.ErrHalt) {
		fmt.Printf("Error running shell: %s\n", err)
		os.Exit(1)
	}
}
