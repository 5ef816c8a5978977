// This file implements the builtin commands.

package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/halos-project/halos/config"
	"github.com/halos-project/halos/loader"
)

// registerBuiltins creates and populates the command table.
func registerBuiltins() map[string]Builtin {

	table := []Builtin{
		{"cls", "Clear the screen.",
			"cls", cmdCls},
		{"config", "Show or change the configuration.",
			"config\nconfig KEY VALUE\nconfig save\nconfig reset", cmdConfig},
		{"date", "Show or set the date and time.",
			"date\ndate YYYY-MM-DD HH:MM:SS", cmdDate},
		{"dir", "List the files on disk.",
			"dir [DIRECTORY]", cmdDir},
		{"exec", "Run a script of commands.",
			"exec FILE", cmdExec},
		{"halt", "Stop the system.",
			"halt", cmdHalt},
		{"help", "Show this help.",
			"help [COMMAND]", cmdHelp},
		{"hexdump", "Show a file as hex and ASCII.",
			"hexdump FILE", cmdHexdump},
		{"load", "Load an application without running it.",
			"load FILE [ARGS..]", cmdLoad},
		{"lsblk", "List the block devices.",
			"lsblk", cmdLsblk},
		{"mixer", "Show or set the audio mixer levels.",
			"mixer\nmixer CHANNEL LEVEL", cmdMixer},
		{"play", "Submit an audio file to the mixer.",
			"play FILE", cmdPlay},
		{"run", "Run the loaded application.",
			"run", cmdRun},
		{"type", "Show the contents of a file.",
			"type FILE", cmdType},
	}

	out := make(map[string]Builtin)
	for _, b := range table {
		out[b.Name] = b
	}
	return out
}

// cmdHelp lists the commands, or details one of them.
func cmdHelp(ctx context.Context, s *Shell, args []string) error {

	if len(args) > 0 {
		b, ok := s.builtins[args[0]]
		if !ok {
			return fmt.Errorf("no such command: %s", args[0])
		}
		s.con.WriteString(b.Help + "\r\n")
		for _, line := range strings.Split(b.Usage, "\n") {
			s.con.WriteString("  " + line + "\r\n")
		}
		return nil
	}

	for _, b := range s.sortedBuiltins() {
		s.con.WriteString(fmt.Sprintf("%-10s %s\r\n", b.Name, b.Help))
	}
	return nil
}

// cmdCls clears the screen.
func cmdCls(ctx context.Context, s *Shell, args []string) error {
	s.con.Clear()
	return nil
}

// cmdDate shows or sets the wall-clock time.
func cmdDate(ctx context.Context, s *Shell, args []string) error {

	if len(args) == 0 {
		s.con.WriteString(s.bios.Now().Format("2006-01-02 15:04:05") + "\r\n")
		return nil
	}

	when, err := time.Parse("2006-01-02 15:04:05", strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("use the form YYYY-MM-DD HH:MM:SS")
	}
	return s.bios.SetNow(when)
}

// cmdDir lists a directory.
func cmdDir(ctx context.Context, s *Shell, args []string) error {

	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}

	entries, err := s.fs.List(dir)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	var total int64
	for _, e := range entries {
		if e.Dir {
			s.con.WriteString(fmt.Sprintf("%-24s    <DIR> %s\r\n",
				e.Name, e.ModTime.Format("2006-01-02 15:04")))
			continue
		}
		s.con.WriteString(fmt.Sprintf("%-24s %8d %s\r\n",
			e.Name, e.Size, e.ModTime.Format("2006-01-02 15:04")))
		total += e.Size
	}
	s.con.WriteString(fmt.Sprintf("%d file(s), %d byte(s)\r\n", len(entries), total))
	return nil
}

// cmdType prints a file to the console.
func cmdType(ctx context.Context, s *Shell, args []string) error {

	if len(args) != 1 {
		return fmt.Errorf("usage: type FILE")
	}

	fh, err := s.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()

	buf := make([]byte, 256)
	for {
		n, err := fh.Read(buf)
		if n > 0 {
			// Bare newlines in the file need a carriage return on
			// the frame buffer.
			text := strings.ReplaceAll(string(buf[:n]), "\n", "\r\n")
			s.con.WriteString(text)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	s.con.WriteString("\r\n")
	return nil
}

// cmdHexdump shows a file as hex and ASCII, sixteen bytes per row.
func cmdHexdump(ctx context.Context, s *Shell, args []string) error {

	if len(args) != 1 {
		return fmt.Errorf("usage: hexdump FILE")
	}

	fh, err := s.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer fh.Close()

	data, err := io.ReadAll(fh)
	if err != nil {
		return err
	}

	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		var hex strings.Builder
		var txt strings.Builder
		for i := 0; i < 16; i++ {
			if i < len(row) {
				hex.WriteString(fmt.Sprintf("%02X ", row[i]))
				if row[i] >= 0x20 && row[i] < 0x7F {
					txt.WriteByte(row[i])
				} else {
					txt.WriteByte('.')
				}
			} else {
				hex.WriteString("   ")
			}
			if i == 7 {
				hex.WriteString(" ")
			}
		}
		s.con.WriteString(fmt.Sprintf("%08X  %s |%s|\r\n", off, hex.String(), txt.String()))
	}
	return nil
}

// cmdLoad places an application in memory without running it.
func cmdLoad(ctx context.Context, s *Shell, args []string) error {

	if len(args) < 1 {
		return fmt.Errorf("usage: load FILE [ARGS..]")
	}
	if s.pending != nil {
		return fmt.Errorf("an application is already loaded; run it first")
	}

	fh, err := s.fs.Open(args[0])
	if err != nil {
		return err
	}
	data, err := io.ReadAll(fh)
	fh.Close()
	if err != nil {
		return err
	}

	c, err := loader.ParseContainer(data)
	if err != nil {
		return err
	}

	p, err := s.loader.Load(c, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	s.pending = p

	s.con.WriteString(fmt.Sprintf("Loaded %s at %s\r\n", args[0], p.Region.String()))
	return nil
}

// cmdRun executes the application placed by load.
func cmdRun(ctx context.Context, s *Shell, args []string) error {

	if s.pending == nil {
		return fmt.Errorf("nothing is loaded; use load first")
	}

	p := s.pending
	s.pending = nil

	s.reportExit(s.loader.Run(ctx, p))
	return nil
}

// cmdExec runs a script of commands, one per line.
//
// A failing line is reported and the script carries on; scripts may
// nest a few levels deep.
func cmdExec(ctx context.Context, s *Shell, args []string) error {

	if len(args) != 1 {
		return fmt.Errorf("usage: exec FILE")
	}
	if s.execDepth >= maxExecDepth {
		return fmt.Errorf("scripts nested too deeply")
	}

	fh, err := s.fs.Open(args[0])
	if err != nil {
		return err
	}
	data, err := io.ReadAll(fh)
	fh.Close()
	if err != nil {
		return err
	}

	s.execDepth++
	defer func() { s.execDepth-- }()

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		err := s.Execute(ctx, line)
		if errors.Is(err, ErrHalt) {
			return err
		}
		if err != nil {
			s.con.WriteString(fmt.Sprintf("Error: %s\r\n", err))
		}
	}
	return nil
}

// cmdConfig shows and edits the configuration.
//
// Edits are held in memory; "config save" writes them to NVRAM.
func cmdConfig(ctx context.Context, s *Shell, args []string) error {

	if len(args) == 0 {
		s.con.WriteString(fmt.Sprintf("videomode     %d\r\n", s.cfg.VideoMode))
		s.con.WriteString(fmt.Sprintf("serialconsole %t\r\n", s.cfg.SerialConsole))
		s.con.WriteString(fmt.Sprintf("serialbaud    %d\r\n", s.cfg.SerialBaud))

		names := make([]string, 0, len(s.cfg.Mixer))
		for name := range s.cfg.Mixer {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s.con.WriteString(fmt.Sprintf("mixer.%-7s %d\r\n", name, s.cfg.Mixer[name]))
		}
		return nil
	}

	switch args[0] {
	case "save":
		if err := s.store.Save(s.cfg); err != nil {
			return err
		}
		s.con.WriteString("Saved.\r\n")
		return nil

	case "reset":
		s.cfg = config.Default()
		s.con.WriteString("Reset; use config save to persist.\r\n")
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf("usage: config KEY VALUE")
	}
	key, value := strings.ToLower(args[0]), args[1]

	switch {
	case key == "videomode":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("bad video mode %s", value)
		}
		s.cfg.VideoMode = uint8(n)

	case key == "serialconsole":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("bad boolean %s", value)
		}
		s.cfg.SerialConsole = b

	case key == "serialbaud":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("bad baud rate %s", value)
		}
		s.cfg.SerialBaud = uint32(n)

	case strings.HasPrefix(key, "mixer."):
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("bad level %s", value)
		}
		if s.cfg.Mixer == nil {
			s.cfg.Mixer = make(map[string]uint8)
		}
		s.cfg.Mixer[strings.TrimPrefix(key, "mixer.")] = uint8(n)

	default:
		return fmt.Errorf("no such key: %s", key)
	}

	s.con.WriteString("Set; use config save to persist.\r\n")
	return nil
}

// cmdLsblk lists the block devices.
func cmdLsblk(ctx context.Context, s *Shell, args []string) error {

	devices := s.bios.BlockDevices()
	if len(devices) == 0 {
		s.con.WriteString("No block devices.\r\n")
		return nil
	}

	s.con.WriteString("NAME       BLOCKSIZE     BLOCKS        SIZE\r\n")
	for _, d := range devices {
		s.con.WriteString(fmt.Sprintf("%-10s %9d %10d %11d\r\n",
			d.Name, d.BlockSize, d.NumBlocks, uint64(d.BlockSize)*d.NumBlocks))
	}
	return nil
}

// cmdMixer shows or sets the audio levels.
func cmdMixer(ctx context.Context, s *Shell, args []string) error {

	if len(args) == 0 {
		for _, ch := range s.bios.MixerChannels() {
			s.con.WriteString(fmt.Sprintf("%-8s %3d/%3d\r\n", ch.Name, ch.Level, ch.Max))
		}
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf("usage: mixer CHANNEL LEVEL")
	}
	level, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return fmt.Errorf("bad level %s", args[1])
	}

	if err := s.bios.SetMixerLevel(args[0], uint8(level)); err != nil {
		return err
	}

	// Remember it, so config save persists the level.
	if s.cfg.Mixer == nil {
		s.cfg.Mixer = make(map[string]uint8)
	}
	s.cfg.Mixer[args[0]] = uint8(level)
	return nil
}

// cmdPlay submits an audio file to the mixer.
func cmdPlay(ctx context.Context, s *Shell, args []string) error {

	if len(args) != 1 {
		return fmt.Errorf("usage: play FILE")
	}

	fh, err := s.fs.Open(args[0])
	if err != nil {
		return err
	}
	data, err := io.ReadAll(fh)
	fh.Close()
	if err != nil {
		return err
	}

	return s.bios.SubmitAudio(data)
}

// cmdHalt stops the system.
func cmdHalt(ctx context.Context, s *Shell, args []string) error {
	return ErrHalt
}
