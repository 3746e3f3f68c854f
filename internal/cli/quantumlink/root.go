// Package quantumlink implements the local command-line front end: it opens
// an in-process DuckDB session and runs chain plans without the HTTP API.
package quantumlink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantumlink/quantumlink/internal/config"
	"github.com/quantumlink/quantumlink/internal/observability"
	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/query/duckdb"
)

var Version = "0.1.0"

// Engine is a query engine owned by a single command invocation.
type Engine interface {
	query.Engine
	Close() error
}

type Opener func(ctx context.Context, cfg duckdb.Config, logger *slog.Logger) (Engine, error)

type Options struct {
	Open   Opener
	Stdout io.Writer
	Stderr io.Writer
}

type engineFlags struct {
	scratchDir  string
	extension   string
	memoryLimit string
	threads     int
	verbose     bool
}

// NewRootCmd builds the command tree. Zero-valued options fall back to a real
// DuckDB session and the process streams.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Open == nil {
		opts.Open = openSession
	}
	flags := &engineFlags{}

	root := &cobra.Command{
		Use:   "quantumlink",
		Short: "Chain-join enrichment over local files",
		Long: `quantumlink left-joins reference files onto a master file with DuckDB.

Sources may be Parquet, CSV, TSV or spreadsheets; results are written as CSV
or Parquet without loading the inputs into memory.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}

	root.PersistentFlags().StringVar(&flags.scratchDir, "scratch-dir", "", "spill directory for the engine (default: a fresh temp dir)")
	root.PersistentFlags().StringVar(&flags.extension, "spreadsheet-extension", "spatial", `DuckDB extension used for .xlsx/.xls, or "none"`)
	root.PersistentFlags().StringVar(&flags.memoryLimit, "memory-limit", "", "DuckDB memory_limit, e.g. 4GB")
	root.PersistentFlags().IntVar(&flags.threads, "threads", 0, "DuckDB worker threads (0 keeps the engine default)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log engine lifecycle to stderr")

	root.AddCommand(newColumnsCommand(opts, flags))
	root.AddCommand(newPreviewCommand(opts, flags))
	root.AddCommand(newRunCommand(opts, flags))
	root.AddCommand(newInspectCommand())
	return root
}

// Execute runs the root command against the process arguments.
func Execute(ctx context.Context) error {
	root := NewRootCmd(Options{})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// withEngine opens an engine for one command and always closes it.
func withEngine(cmd *cobra.Command, opts Options, flags *engineFlags, fn func(Engine) error) (err error) {
	cfg := duckdb.Config{
		ScratchDir:           flags.scratchDir,
		SpreadsheetExtension: flags.extension,
		MemoryLimit:          flags.memoryLimit,
		Threads:              flags.threads,
	}
	if cfg.ScratchDir == "" {
		dir, err := os.MkdirTemp("", "quantumlink-scratch-")
		if err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		cfg.ScratchDir = dir
	}

	engine, err := opts.Open(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr(), flags.verbose))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(engine)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return observability.NewLogger(config.Config{
		Service:       config.ServiceConfig{Name: "quantumlink"},
		Observability: config.ObservabilityConfig{LogLevel: level},
	}, w)
}

func openSession(ctx context.Context, cfg duckdb.Config, logger *slog.Logger) (Engine, error) {
	session, err := duckdb.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return session, nil
}
