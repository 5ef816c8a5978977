// Package shell implements the interactive command processor.
//
// The shell owns the console while no application is running: it reads
// a line, tokenises it, and dispatches to a builtin command.  A word
// which names no builtin falls through to the application loader, so
// typing "rogue" runs "rogue.bin" from the filesystem.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/halos-project/halos/bios"
	"github.com/halos-project/halos/config"
	"github.com/halos-project/halos/console"
	"github.com/halos-project/halos/fsys"
	"github.com/halos-project/halos/loader"
)

// ErrHalt is returned by the halt command, and stops the shell loop.
//
// It should be handled and expected by callers.
var ErrHalt = errors.New("HALT")

// maxExecDepth caps how deeply exec scripts may nest.
const maxExecDepth = 4

// prompt is shown before every line of input.
const prompt = "> "

// HandlerFunc is the signature of a builtin command.
type HandlerFunc func(ctx context.Context, s *Shell, args []string) error

// Builtin contains details of a specific command we implement.
type Builtin struct {

	// Name is the word which invokes the command.
	Name string

	// Help is the one-line summary shown by "help".
	Help string

	// Usage is the fuller text shown by "help NAME".
	Usage string

	// Handler contains the function which implements the command.
	Handler HandlerFunc
}

// Shell is the command processor.
type Shell struct {

	// con is the console we read from and write to.
	con *console.Console

	// bios supplies the keyboard, clock, block devices, and audio.
	bios bios.Bios

	// fs is the filesystem commands operate upon.
	fs fsys.Filesystem

	// loader runs applications.
	loader *loader.Loader

	// store persists the configuration.
	store *config.Store

	// cfg is the live configuration; edits stay in memory until
	// "config save".
	cfg config.Record

	// pending is a program placed by "load", awaiting "run".
	pending *loader.Program

	// builtins maps command names to their implementations.
	builtins map[string]Builtin

	// execDepth tracks script nesting.
	execDepth int

	// logger is used for debugging and diagnostics.
	logger *slog.Logger
}

// New creates a shell wired to the given services.
func New(con *console.Console, b bios.Bios, fs fsys.Filesystem,
	l *loader.Loader, store *config.Store, cfg config.Record,
	logger *slog.Logger) *Shell {

	s := &Shell{
		con:    con,
		bios:   b,
		fs:     fs,
		loader: l,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
	s.builtins = registerBuiltins()
	return s
}

// Config returns the live configuration.
func (s *Shell) Config() config.Record {
	return s.cfg
}

// Run reads and executes commands until halt, or until the input
// source is exhausted.
func (s *Shell) Run(ctx context.Context) error {

	for {
		s.con.WriteString(prompt)

		line, err := s.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		err = s.Execute(ctx, line)
		if errors.Is(err, ErrHalt) {
			return ErrHalt
		}
		if err != nil {
			s.con.WriteString(fmt.Sprintf("Error: %s\r\n", err))
		}
	}
}

// ReadLine reads one line of input, echoing as it goes.
//
// Backspace edits the line; control characters and escape sequences
// are swallowed.
func (s *Shell) ReadLine() (string, error) {

	var line []byte

	for {
		key, err := s.bios.BlockForKey()
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				// Deliver what we have before reporting the end.
				s.con.WriteString("\r\n")
				return string(line), nil
			}
			return "", err
		}

		switch {
		case key == '\r' || key == '\n':
			s.con.WriteString("\r\n")
			return string(line), nil

		case key == 0x7F || key == 0x08:
			if len(line) > 0 {
				line = line[:len(line)-1]
				s.con.WriteString("\b \b")
			}

		case key == 0x03:
			// Ctrl-C abandons the line.
			s.con.WriteString("^C\r\n")
			return "", nil

		case key == 0x1B:
			// Swallow a simple escape sequence, so arrow keys do not
			// litter the line.
			next, err := s.bios.BlockForKey()
			if err != nil {
				return "", err
			}
			if next == '[' {
				if _, err := s.bios.BlockForKey(); err != nil {
					return "", err
				}
			}

		case key >= 0x20 && key < 0x7F:
			line = append(line, key)
			s.con.Write([]byte{key})
		}
	}
}

// Execute runs a single command line.
func (s *Shell) Execute(ctx context.Context, line string) error {

	tokens, err := Tokenize(line)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	// Resolution is case-sensitive; "DIR" is a filename, not a builtin.
	name := tokens[0]
	args := tokens[1:]

	if b, ok := s.builtins[name]; ok {
		return b.Handler(ctx, s, args)
	}

	return s.launch(ctx, tokens[0], args)
}

// launch is the fall-through for unknown commands: try the word as an
// application name.
func (s *Shell) launch(ctx context.Context, name string, args []string) error {

	if s.loader.Resident() {
		return fmt.Errorf("an application is already loaded; run it first")
	}

	target := name
	if !strings.Contains(target, ".") {
		target += ".bin"
	}

	reason, err := s.loader.LoadAndRun(ctx, target, strings.Join(args, " "))
	if err != nil {
		if errors.Is(err, loader.ErrInvalidContainer) {
			return fmt.Errorf("%s is not an application", target)
		}
		return fmt.Errorf("unknown command %s, and no application %s", name, target)
	}

	s.reportExit(reason)
	return nil
}

// reportExit tells the user how an application run ended, when there is
// anything worth saying.
func (s *Shell) reportExit(reason loader.ExitReason) {
	if reason.Faulted {
		s.con.WriteString(fmt.Sprintf("Application fault: %s\r\n", reason.Cause))
		return
	}
	if reason.Code != 0 {
		s.con.WriteString(fmt.Sprintf("Exit code %d\r\n", reason.Code))
	}
}

// Tokenize splits a command line into words, honouring double quotes.
func Tokenize(line string) ([]string, error) {

	var tokens []string
	var cur strings.Builder
	inQuote := false
	inToken := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			inToken = true

		case (r == ' ' || r == '\t') && !inQuote:
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}

		default:
			cur.WriteRune(r)
			inToken = true
		}
	}

	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// sortedBuiltins returns the builtins in name order, for help output.
func (s *Shell) sortedBuiltins() []Builtin {
	out := make([]Builtin, 0, len(s.builtins))
	for _, b := range s.builtins {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
