// Package cli provides the command-line interface for magma.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/magma"
	"github.com/zoobzio/magma/internal/server"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "manifest",
		Aliases: []string{"m"},
		Usage:   "Flow manifest (.yaml, .yml or .json)",
		Value:   "magma.yaml",
		EnvVars: []string{"MAGMA_MANIFEST"},
	},
	&cli.StringFlag{
		Name:    "root",
		Usage:   "Root directory for relative flow paths (overrides the manifest)",
		EnvVars: []string{"MAGMA_ROOT"},
	},
	&cli.StringFlag{
		Name:    "store",
		Usage:   "Artifact store URL (memory://, file:///dir, s3://bucket, redis://host, ...)",
		Value:   "memory://",
		EnvVars: []string{"MAGMA_STORE"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		EnvVars: []string{"MAGMA_LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-format",
		Usage:   "Log format (text, json)",
		Value:   "text",
		EnvVars: []string{"MAGMA_LOG_FORMAT"},
	},
	&cli.DurationFlag{
		Name:    "transform-timeout",
		Usage:   "Cancel a single transform after this long (0 disables)",
		EnvVars: []string{"MAGMA_TRANSFORM_TIMEOUT"},
	},
	&cli.IntFlag{
		Name:    "concurrency",
		Usage:   "Files preprocessed at once per flow (0 uses GOMAXPROCS)",
		EnvVars: []string{"MAGMA_CONCURRENCY"},
	},
}

var buildCommand = &cli.Command{
	Name:   "build",
	Usage:  "Run every flow once and exit",
	Action: runBuild,
}

var watchCommand = &cli.Command{
	Name:   "watch",
	Usage:  "Build every flow, then rebuild flows whose sources change",
	Action: runWatch,
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Watch and serve each flow's artifact at its route",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "HTTP listen address",
			Value:   ":8080",
			EnvVars: []string{"MAGMA_ADDR"},
		},
	},
	Action: runServe,
}

var flowsCommand = &cli.Command{
	Name:   "flows",
	Usage:  "List the flows declared in the manifest",
	Action: runFlows,
}

// NewApp creates the CLI application writing to out and errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:    "magma",
		Usage:   "Asset pipeline: collect, transform and bundle stylesheets, scripts and templates",
		Version: Version,
		Description: `Magma builds one artifact per flow declared in a manifest. Each flow
collects its source files, preprocesses them, concatenates the results,
postprocesses the bundle and hands it to an artifact store.

Examples:
  magma build -m assets.yaml --store file:///srv/public/assets
  magma watch --log-level debug
  magma serve --addr :3000`,
		Flags:     GlobalFlags,
		Writer:    out,
		ErrWriter: errOut,
		Commands: []*cli.Command{
			buildCommand,
			watchCommand,
			serveCommand,
			flowsCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	err := NewApp(os.Stdout, os.Stderr).Run(os.Args)
	capitan.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is everything a command needs: a logger, an opened store and an
// engine built from the manifest.
type session struct {
	logger *slog.Logger
	store  *openedStore
	engine *magma.Engine
}

func (s *session) Close() error {
	return errors.Join(s.engine.Close(), s.store.Close())
}

func newSession(c *cli.Context, opts ...magma.Option) (*session, error) {
	logger, err := newLogger(c.App.ErrWriter, c.String("log-level"), c.String("log-format"))
	if err != nil {
		return nil, err
	}
	bridgeSignals(logger)

	m, err := magma.LoadManifest(c.String("manifest"))
	if err != nil {
		return nil, err
	}
	if root := c.String("root"); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", root, err)
		}
		m.Defaults.Root = abs
	}

	store, err := openStore(c.Context, c.String("store"))
	if err != nil {
		return nil, err
	}

	opts = append([]magma.Option{
		magma.WithLogger(logger),
		magma.WithTransformTimeout(c.Duration("transform-timeout")),
		magma.WithConcurrency(c.Int("concurrency")),
	}, opts...)

	engine, err := m.Build(store, opts...)
	if err != nil {
		_ = engine.Close()
		_ = store.Close()
		return nil, err
	}

	return &session{logger: logger, store: store, engine: engine}, nil
}

func runBuild(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.RunAll(c.Context); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "built %d flows\n", len(s.engine.Flows()))
	return nil
}

func runWatch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	// A failing first run leaves the flow armed, so keep watching.
	if err := s.engine.StartAll(ctx); err != nil {
		s.logger.Warn("initial build incomplete", "error", err)
	}

	<-ctx.Done()
	s.engine.Stop()
	return nil
}

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.StartAll(ctx); err != nil {
		s.logger.Warn("initial build incomplete", "error", err)
	}

	srv := server.NewServer(s.engine, s.store, s.logger)
	s.logger.Info("serving artifacts", "addr", c.String("addr"))
	err = srv.ListenAndServe(ctx, c.String("addr"))
	s.engine.Stop()
	return err
}

func runFlows(c *cli.Context) error {
	m, err := magma.LoadManifest(c.String("manifest"))
	if err != nil {
		return err
	}
	specs, err := m.Specs()
	if err != nil {
		return err
	}

	engine := magma.NewEngine(m.Defaults, magma.StoreFunc(func(context.Context, magma.Artifact) error {
		return nil
	}))
	defer engine.Close()

	for _, spec := range specs {
		f, err := engine.NewFlow(spec)
		if err != nil {
			return err
		}
		cfg := f.Config()
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\t%v\n", f.ID(), cfg.Route, cfg.Type, cfg.Paths)
	}
	return nil
}
