// Package main implements the muninn CLI: a per-project coding-context
// memory engine. The binary hosts the tool-protocol server, the shared-mode
// primary, and operational commands over the same store.
//
// Commands:
//   - serve    - tool protocol over stdio (MCP)
//   - primary  - shared-mode HTTP primary
//   - scan     - one fragility pass
//   - check    - integrity report
//   - query    - one-shot context query
//   - status   - suppression counters and budget recommendations
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ravnltd/muninn/internal/config"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitIntegrity   = 2
	exitUnreachable = 3
)

var (
	projectRoot string
	verbose     bool

	console *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:           "muninn",
	Short:         "Per-project coding-context memory engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if projectRoot == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			projectRoot = wd
		}
		console = newConsoleLogger(verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", "", "project root (default: working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose console output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(primaryCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
}

// newConsoleLogger builds the zap console logger for user-facing output; the
// structured diagnostic stream stays on the logging package.
func newConsoleLogger(verbose bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core).Sugar()
}

// loadConfig builds the runtime config and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.DataDir, cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the adapter for the configured mode.
func openStore(cfg *config.Config) (store.Adapter, error) {
	return store.Open(string(cfg.Mode), store.Options{
		Path:         cfg.DatabasePath(),
		PrimaryURL:   cfg.PrimaryURL,
		APIToken:     cfg.APIToken,
		MigrationLog: cfg.MigrationLogPath(),
	})
}

// exitCodeFor maps error kinds onto the documented exit codes.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, store.ErrIntegrity):
		return exitIntegrity
	case errors.Is(err, store.ErrUnreachable):
		return exitUnreachable
	default:
		return exitUsage
	}
}

func main() {
	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}
