package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/studio"
)

const studioHelp = `Type text to set the payload. Commands:
  :fg <color>             module color
  :bg <color>             background color
  :size <px>              image size
  :transparent on|off     transparent background
  :generate               render now
  :export png|svg [path]  write the current code to a file
  :reset                  restore defaults
  :show                   print the current request
  :help                   this text
  :quit                   exit
`

var errQuit = errors.New("quit")

// studioShell applies editor commands to a pipeline.
type studioShell struct {
	pipeline *studio.Pipeline
	out      io.Writer
}

// Exec runs one input line. It returns errQuit when the user asks to leave.
func (s *studioShell) Exec(line string) error {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ":") {
		s.pipeline.Update(studio.Patch{Payload: &line})
		return nil
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case ":fg", ":bg":
		if len(args) != 1 {
			return errors.Errorf("usage: %s <color>", cmd)
		}
		if cmd == ":fg" {
			s.pipeline.Update(studio.Patch{ModuleColor: &args[0]})
		} else {
			s.pipeline.Update(studio.Patch{BackgroundColor: &args[0]})
		}

	case ":size":
		if len(args) != 1 {
			return errors.New("usage: :size <px>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Errorf("invalid size %q", args[0])
		}
		req := s.pipeline.Update(studio.Patch{PixelSize: &n})
		if req.PixelSize != n {
			fmt.Fprintf(s.out, "size clamped to %d\n", req.PixelSize)
		}

	case ":transparent":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: :transparent on|off")
		}
		on := args[0] == "on"
		s.pipeline.Update(studio.Patch{TransparentBackground: &on})

	case ":generate":
		return s.pipeline.Generate()

	case ":export":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: :export png|svg [path]")
		}
		format, err := studio.ParseFormat(args[0])
		if err != nil {
			return err
		}
		dl, err := s.pipeline.Export(format)
		if err != nil {
			return err
		}
		path := dl.FileName
		if len(args) == 2 {
			path = args[1]
		}
		if err := os.WriteFile(path, dl.Data, 0o644); err != nil {
			return errors.Wrap(err, "write export")
		}
		abs, _ := filepath.Abs(path)
		fmt.Fprintf(s.out, "saved %s\n", abs)

	case ":reset":
		s.pipeline.Reset()
		fmt.Fprintln(s.out, "reset to defaults")

	case ":show":
		req := s.pipeline.Request()
		fmt.Fprintf(s.out, "payload=%q fg=%s bg=%s transparent=%t size=%d\n",
			req.Payload, req.ModuleColor, req.BackgroundColor, req.TransparentBackground, req.PixelSize)
		if art := s.pipeline.Artifact(); art != nil {
			fmt.Fprintf(s.out, "preview generation=%d fingerprint=%s\n", art.Generation, art.Fingerprint[:12])
		}

	case ":help":
		fmt.Fprint(s.out, studioHelp)

	case ":quit", ":q":
		return errQuit

	default:
		return errors.Errorf("unknown command %s (try :help)", cmd)
	}
	return nil
}

// halfBlocks draws sym with a quiet zone of margin modules, two module rows
// per text line.
func halfBlocks(sym *qr.Symbol, margin int, out io.Writer) {
	var b strings.Builder
	for y := -margin; y < sym.Size+margin; y += 2 {
		for x := -margin; x < sym.Size+margin; x++ {
			top, bottom := sym.Dark(x, y), sym.Dark(x, y+1)
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	io.WriteString(out, b.String())
}

// printEvents renders each event to out until events is closed. The terminal
// preview is drawn from the same symbol the configured backend produced for
// the artifact.
func printEvents(e *env, events <-chan studio.Event, out io.Writer) {
	for evt := range events {
		switch evt.Kind {
		case studio.EventRendered:
			fmt.Fprintln(out)
			sym, err := e.encoder.Symbol(evt.Artifact.Request.Payload, e.settings.Level)
			if err != nil {
				fmt.Fprintf(out, "preview unavailable: %v\n", err)
			} else {
				halfBlocks(sym, e.settings.Margin, out)
			}
			fmt.Fprintf(out, "generation %d, %dpx\n", evt.Artifact.Generation, evt.Artifact.Request.PixelSize)
		case studio.EventCleared:
			fmt.Fprintln(out, "(no payload)")
		case studio.EventFailed:
			fmt.Fprintf(out, "render failed: %v\n", evt.Err)
		}
	}
}

func runStudio(e *env) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "qr> ",
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return errors.Wrap(err, "init readline")
	}
	defer rl.Close()

	p := studio.New(e.encoder, e.settings)
	defer p.Close()

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()
	go printEvents(e, events, rl.Stdout())

	shell := &studioShell{pipeline: p, out: rl.Stdout()}
	fmt.Fprint(rl.Stdout(), studioHelp)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err := shell.Exec(line); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}
