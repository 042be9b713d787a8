package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/dars/internal/config"
	darshttp "github.com/ligustah/dars/internal/http"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitCatalogError = 3
	ExitStorageError = 4
	ExitFetchFailed  = 5
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[dars] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	root := newRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps a command error to the process exit code. Errors raised by
// cobra itself (unknown flags, bad arguments) are usage errors.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitInvalidArgs
}

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath  string
	envFiles    []string
	verbose     bool
	logJSON     bool
	metricsFile string

	flags config.Config
	subs  []string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dars",
		Short: "Fetch document archives listed by the SOI catalog",
		Long: `dars queries the SOI catalog service, extracts archive download links,
downloads each archive with retries and optionally stores it in object storage.

Configuration is read from a YAML file (--config), DARS_* environment
variables (optionally from .env files) and flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringSliceVar(&a.envFiles, "env-file", nil, "Load environment variables from these files (default .env if present)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&a.logJSON, "log-json", false, "Write logs as JSON")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")

	pf.StringVar(&a.flags.BaseURL, "base-url", "", "Catalog service URL")
	pf.StringArrayVar(&a.subs, "substitute", nil, "URL prefix substitution from=to (repeatable, first match wins)")
	pf.StringVarP(&a.flags.DownloadDir, "download-dir", "d", "", "Local download directory (default downloads)")
	pf.StringVar(&a.flags.Bucket, "bucket", "", "Object store bucket URL, enables uploads (s3://, gs://, file://)")
	pf.StringVar(&a.flags.ObjectStorePrefix, "prefix", "", "Object key prefix")
	pf.IntVarP(&a.flags.Workers, "jobs", "j", 0, "Number of parallel downloads (default 1)")
	pf.DurationVar(&a.flags.RequestTimeout, "timeout", 0, "Per-request timeout (default 60s)")
	pf.IntVar(&a.flags.Retry.Attempts, "retry-attempts", 0, "Attempts per request (default 5)")
	pf.DurationVar(&a.flags.Retry.Delay, "retry-delay", 0, "Delay between attempts (default 5s)")
	pf.StringVar(&a.flags.Filter, "filter", "", "Only fetch links matching this regular expression")
	pf.BoolVar(&a.flags.Progress, "progress", false, "Show progress output")

	root.AddCommand(
		newFetchCmd(a),
		newGetCmd(a),
		newLinksCmd(a),
		newCheckCmd(a),
	)

	return root
}

// setup loads configuration and builds the logger.
func (a *app) setup() error {
	if err := a.loadEnv(); err != nil {
		return exitWith(ExitInvalidArgs, err)
	}

	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.LoadFromFile(a.configPath)
		if err != nil {
			return exitWith(ExitInvalidArgs, err)
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return exitWith(ExitInvalidArgs, err)
	}

	a.flags.Substitutions = nil
	for _, pair := range a.subs {
		subs, err := config.ParseSubstitutions(pair)
		if err != nil {
			return exitWith(ExitInvalidArgs, err)
		}
		a.flags.Substitutions = append(a.flags.Substitutions, subs...)
	}
	cfg = cfg.Merge(a.flags)

	if err := cfg.Validate(); err != nil {
		return exitWith(ExitInvalidArgs, err)
	}
	a.cfg = cfg

	logger, err := newLogger(a.verbose, a.logJSON)
	if err != nil {
		return exitWith(ExitGeneralError, fmt.Errorf("initialize logger: %w", err))
	}
	a.logger = logger.With(zap.String("session", uuid.NewString()))

	return nil
}

func (a *app) loadEnv() error {
	if len(a.envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			return godotenv.Load(".env")
		}
		return nil
	}
	if err := godotenv.Load(a.envFiles...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// httpClient returns a client configured from a.cfg.
func (a *app) httpClient() *darshttp.Client {
	opts := a.cfg.HTTPOptions()
	opts.Logger = a.logger
	return darshttp.NewClient(opts)
}

func newLogger(verbose, jsonOut bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !jsonOut {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
