package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/goviz/config"
	"github.com/caffeineduck/goviz/engine/graphviz"
	"github.com/caffeineduck/goviz/engine/wasm"
	"github.com/caffeineduck/goviz/native"
	"github.com/caffeineduck/goviz/viz"
)

// errFailed is returned by commands that already reported their failure.
var errFailed = errors.New("failed")

// moduleOpener creates the engine selected by the configuration.
type moduleOpener func(ctx context.Context, a *app) (native.Module, error)

// app is the state shared by all commands of one invocation.
type app struct {
	cfg        config.Config
	log        *log.Logger
	noCache    bool
	checkLeaks bool
	open       moduleOpener
}

func Execute() {
	root := newRootCmd(openModule)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			printError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd(open moduleOpener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "goviz [file]",
		Short: "Render Graphviz graphs with an embedded engine",
		Long: `goviz - Render Graphviz graphs using WebAssembly.

Graphs are read as DOT source, or as JSON/YAML graph descriptions, from a
file, an inline string or stdin. Run without a subcommand to render.

Configuration is read from --config, ./goviz.toml or
~/.config/goviz/goviz.toml; flags override it.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args)
		},
	}

	root.PersistentFlags().String("config", "", "Config file (default: ./goviz.toml if present)")
	root.PersistentFlags().String("backend", "", "Engine backend: graphviz, wasm")
	root.PersistentFlags().String("wasm", "", "Path to the viz wasm module (wasm backend)")
	root.PersistentFlags().Bool("no-cache", false, "Disable compilation and result caches")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().Bool("check-leaks", false, "Verify that every engine resource is released")

	addRenderFlags(root)

	root.AddCommand(newRenderCmd())
	root.AddCommand(newVersionCmd(), newFormatsCmd(), newEnginesCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())

	return root
}

// setup loads configuration, applies persistent flags and stores the app
// in the command context.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	if path == "" {
		path = config.Find()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if backend, _ := flags.GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if module, _ := flags.GetString("wasm"); module != "" {
		cfg.Wasm.Module = module
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	verbose, _ := flags.GetBool("verbose")
	level, err := logLevel(cfg.LogLevel, verbose)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	a.cfg = cfg
	a.log = newLogger(cmd.ErrOrStderr(), level)
	a.noCache, _ = flags.GetBool("no-cache")
	a.checkLeaks, _ = flags.GetBool("check-leaks")

	if path != "" {
		a.log.Debug("loaded config", "path", path)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(withApp(ctx, a))
	return nil
}

// openModule is the production moduleOpener.
func openModule(ctx context.Context, a *app) (native.Module, error) {
	switch a.cfg.Backend {
	case config.BackendWasm:
		pages, err := wasm.ParseMemoryLimit(a.cfg.Wasm.MemoryLimit)
		if err != nil {
			return nil, err
		}
		opts := []wasm.Option{wasm.WithLogger(a.log), wasm.WithMemoryLimit(pages)}
		if !a.noCache {
			opts = append(opts, wasm.WithDiskCache(a.cfg.Wasm.CacheDir))
		}
		return wasm.Open(ctx, a.cfg.Wasm.Module, opts...)
	default:
		return graphviz.New(ctx, graphviz.WithLogger(a.log))
	}
}

// session is an opened engine plus the renderer on top of it.
type session struct {
	viz    *viz.Viz
	ledger *native.Ledger
	log    *log.Logger
}

// newSession opens the engine. Configured render defaults apply to every
// call made through the session.
func (a *app) newSession(ctx context.Context) (*session, error) {
	mod, err := a.open(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("open %s engine: %w", a.cfg.Backend, err)
	}

	s := &session{log: a.log}
	if a.checkLeaks {
		s.ledger = native.NewLedger(mod)
		mod = s.ledger
	}
	s.viz = viz.New(mod,
		viz.WithLogger(a.log),
		viz.WithDefaults(viz.WithEngine(a.cfg.Render.Engine), viz.WithFormat(a.cfg.Render.Format)),
	)
	return s, nil
}

// Close releases the engine and reports leaks when --check-leaks is set.
func (s *session) Close() error {
	var leakErr error
	if s.ledger != nil {
		leakErr = s.ledger.Check()
		if leakErr != nil {
			s.log.Error("resource leak", "err", leakErr)
		} else {
			s.log.Debug("no leaked resources", "counts", s.ledger.Counts())
		}
	}
	return errors.Join(s.viz.Close(), leakErr)
}

func appFrom(cmd *cobra.Command) *app {
	return appFromContext(cmd.Context())
}
