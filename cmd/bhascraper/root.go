package main

import (
	"fmt"
	"os"
	"runtime"

	"bhascraper/pkg/config"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bhascraper",
	Short: "Fetch fixtures, races, results and horses from the British Horseracing API",
	Long: `bhascraper walks the British Horseracing Authority results API for a date range.

It captures a bearer token from the public results page with a headless
browser, then fetches fixtures month by month, the races of every fixture,
the results of every race and optionally every horse that ran.

Features:
  - Responses cached on disk so reruns only hit the network for new data
  - Retries with exponential backoff on network errors, 429 and 5xx
  - Automatic token refresh when the API rejects the current token
  - Resumable runs with per-month checkpoints
  - Tokens optionally kept in the system keychain or an encrypted file`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
		if quiet {
			ui.Quiet = true
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .bhascraper.yaml or $XDG_CONFIG_HOME/bhascraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and one line per skipped unit")

	rootCmd.SetVersionTemplate(`bhascraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// effectiveLogLevel resolves --log-level, --verbose and --quiet. An explicit
// level wins.
func effectiveLogLevel() string {
	switch {
	case logLevel != "":
		return logLevel
	case verbose:
		return "debug"
	case quiet:
		return "error"
	default:
		return ""
	}
}

// loadConfig loads configuration with flags applied and initializes the
// global logger from it
func loadConfig(flags map[string]interface{}) (*config.Config, logger.Logger, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if level := effectiveLogLevel(); level != "" {
		flags["log-level"] = level
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("bhascraper starting")

	return cfg, log, nil
}
