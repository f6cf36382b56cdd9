package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/goviz/viz"
)

const (
	promptMain     = "viz> "
	promptContinue = "...> "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive prompt for rendering DOT",
		Long: `Start an interactive prompt. Each entry is a DOT graph rendered with
the current format and engine.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Commands:
  :format NAME   set the output format
  :engine NAME   set the layout engine
  :formats       list formats
  :engines       list engines
  :help          show this help

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().StringP("format", "T", "", "Initial output format (default from config)")
	cmd.Flags().StringP("engine", "K", "", "Initial layout engine (default from config)")
	cmd.Flags().String("history", "", "History file path (default: ~/.goviz_history)")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	a := appFrom(cmd)
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".goviz_history")
	}

	ctx := cmd.Context()
	s, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	r := newReplState(s.viz, cmd.OutOrStdout(), cmd.ErrOrStderr())
	r.format, r.engine = a.cfg.Render.Format, a.cfg.Render.Engine
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		r.format = format
	}
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		r.engine = engine
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptMain,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	version, _ := s.viz.Version(ctx)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s (type 'exit' to quit, Ctrl+D to exit)\n",
		styleTitle.Render("goviz "+version))

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				r.cancel()
				rl.SetPrompt(promptMain)
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		entry, complete := r.feed(line)
		if !complete {
			rl.SetPrompt(promptContinue)
			continue
		}
		rl.SetPrompt(promptMain)

		if quit := r.eval(ctx, entry); quit {
			return nil
		}
	}
}

// replState holds the prompt's settings and any unfinished multi-line
// entry.
type replState struct {
	viz     *viz.Viz
	out     io.Writer
	errOut  io.Writer
	format  string
	engine  string
	pending strings.Builder
	partial bool
}

func newReplState(v *viz.Viz, out, errOut io.Writer) *replState {
	return &replState{viz: v, out: out, errOut: errOut, format: "svg", engine: viz.DefaultEngine}
}

// feed adds a line. A trailing backslash continues the entry on the next
// line; otherwise the accumulated entry is returned.
func (r *replState) feed(line string) (string, bool) {
	if strings.HasSuffix(line, "\\") {
		r.pending.WriteString(strings.TrimSuffix(line, "\\"))
		r.pending.WriteString("\n")
		r.partial = true
		return "", false
	}
	if r.partial {
		r.pending.WriteString(line)
		line = r.pending.String()
		r.cancel()
	}
	return line, true
}

func (r *replState) cancel() {
	r.pending.Reset()
	r.partial = false
}

// eval runs one entry and reports whether the session should end.
func (r *replState) eval(ctx context.Context, entry string) bool {
	entry = strings.TrimSpace(entry)
	switch {
	case entry == "":
		return false
	case entry == "exit" || entry == "quit":
		return true
	case strings.HasPrefix(entry, ":"):
		r.command(ctx, entry)
		return false
	}

	res, err := r.viz.Render(ctx, viz.Text(entry), viz.WithFormat(r.format), viz.WithEngine(r.engine))
	if err != nil {
		printError(r.errOut, err)
		return false
	}
	printDiagnostics(r.errOut, res.Errors)
	if res.Status == viz.StatusSuccess {
		fmt.Fprint(r.out, res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Fprintln(r.out)
		}
	}
	return false
}

func (r *replState) command(ctx context.Context, entry string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(entry, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "format":
		if arg == "" {
			printInfo(r.errOut, "format: %s", r.format)
			return
		}
		r.format = arg
		printInfo(r.errOut, "format set to %s", arg)
	case "engine":
		if arg == "" {
			printInfo(r.errOut, "engine: %s", r.engine)
			return
		}
		r.engine = arg
		printInfo(r.errOut, "engine set to %s", arg)
	case "formats", "engines":
		list := r.viz.Formats
		if name == "engines" {
			list = r.viz.Engines
		}
		names, err := list(ctx)
		if err != nil {
			printError(r.errOut, err)
			return
		}
		fmt.Fprintln(r.out, strings.Join(names, " "))
	case "help":
		printInfo(r.errOut, ":format NAME, :engine NAME, :formats, :engines, exit")
	default:
		printError(r.errOut, fmt.Errorf("unknown command :%s (try :help)", name))
	}
}
