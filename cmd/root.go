// Package cmd implements the collection-server command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevemurr/collection-server/config"
	"github.com/stevemurr/collection-server/logging"
	"github.com/stevemurr/collection-server/store"
)

// Version is overridden at build time with
// -ldflags "-X github.com/stevemurr/collection-server/cmd.Version=v1.2.3".
var Version = "dev"

// CmdOption configures the command dependencies.
type CmdOption func(*CmdDeps)

// CmdDeps holds the IO streams and flag values shared by all commands.
type CmdDeps struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	cfgFile string
}

// WithIO sets the command streams.
func WithIO(in io.Reader, out, errOut io.Writer) CmdOption {
	return func(d *CmdDeps) {
		d.In = in
		d.Out = out
		d.Err = errOut
	}
}

func applyCmdOptions(options ...CmdOption) *CmdDeps {
	d := &CmdDeps{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// NewRootCmd builds the root command and its subcommands.
func NewRootCmd(options ...CmdOption) *cobra.Command {
	deps := applyCmdOptions(options...)

	root := &cobra.Command{
		Use:   "collection-server",
		Short: "REST server over named JSON collections",
		Long: `collection-server exposes CRUD endpoints over named collections of JSON
records. Each collection is stored as a JSON array with its own id sequence.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.SetIn(deps.In)
	root.SetOut(deps.Out)
	root.SetErr(deps.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&deps.cfgFile, "config", "", "YAML config file")
	pf.String("data-dir", config.DefaultDataDir, "directory holding collection files")
	pf.String("store-backend", config.DefaultStoreBackend, "storage backend: json, sqlite, memory")
	pf.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "emit JSON logs")

	root.AddCommand(
		newServeCmd(deps),
		newCollectionsCmd(deps),
		newDumpCmd(deps),
	)
	return root
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// runtime is what a command needs once flags are parsed.
type runtime struct {
	cfg   *config.Config
	log   *slog.Logger
	store store.Store
}

func (r *runtime) Close() error {
	return r.store.Close()
}

// open resolves config for cmd, builds the logger, and opens the store.
// A readOnly store skips the data directory lock so it can inspect a
// directory a running server owns.
func (d *CmdDeps) open(cmd *cobra.Command, readOnly bool) (*runtime, error) {
	cfg, err := config.Load(d.cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	lg := logging.NewLogger(logging.Config{Out: d.Err, Level: level, JSON: cfg.LogJSON})

	opts := []store.Option{store.WithLogger(lg)}
	if readOnly {
		opts = append(opts, store.ReadOnly())
	}
	s, err := store.New(cfg.StoreBackend, cfg.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create store (backend=%s): %w", cfg.StoreBackend, err)
	}
	return &runtime{cfg: cfg, log: lg, store: s}, nil
}
