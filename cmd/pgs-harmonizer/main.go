// Package main provides the pgs-harmonizer command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/pgs-harmonizer/internal/ensembl"
	"github.com/inodb/pgs-harmonizer/internal/liftover"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isUsageError(err) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pgs-harmonizer",
		Short: "Harmonize PGS Catalog scoring files to a target genome build",
		Long: `pgs-harmonizer maps the variants of a PGS Catalog scoring file onto a
target genome build using Ensembl variation lookups and UCSC liftover chains,
assigns every variant a harmonization code and writes a harmonized file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			l, err := newLogger(verbose)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.pgs-harmonizer.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	cmd.AddCommand(newHarmonizeCmd())
	cmd.AddCommand(newDownloadChainCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pgs-harmonizer version %s (%s) built %s\n", version, commit, date)
		},
	}
}

// newLogger builds a production logger writing to stderr, at debug level
// when verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// initConfig reads the config file and environment into viper. A missing
// config file is not an error so that config set can create it.
func initConfig() error {
	viper.Reset()
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".pgs-harmonizer")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PGS_HARMONIZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	dataDir := defaultDataDir()
	viper.SetDefault("target_build", "GRCh38")
	viper.SetDefault("variant_id", "rsid")
	viper.SetDefault("workers", 0)
	viper.SetDefault("ensembl.url", ensembl.DefaultURL)
	viper.SetDefault("ensembl.grch37_url", ensembl.GRCh37URL)
	viper.SetDefault("ensembl.timeout", "60s")
	viper.SetDefault("ensembl.max_retries", 5)
	viper.SetDefault("ensembl.batch_size", 200)
	viper.SetDefault("ensembl.concurrency", 4)
	viper.SetDefault("chains.dir", filepath.Join(dataDir, "chains"))
	viper.SetDefault("chains.url", liftover.DefaultChainBaseURL)
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.db", filepath.Join(dataDir, "cache.duckdb"))
}

// defaultDataDir returns ~/.pgs-harmonizer, or a relative directory when
// the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pgs-harmonizer"
	}
	return filepath.Join(home, ".pgs-harmonizer")
}

// usageError marks errors caused by bad invocation.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// usageArgs wraps a positional argument validator so its failures map to
// ExitUsage.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func isUsageError(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	return strings.HasPrefix(err.Error(), "unknown command")
}
