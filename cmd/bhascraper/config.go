package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bhascraper/pkg/config"
	"bhascraper/pkg/ui"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage bhascraper configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (BHASCRAPER_*)
  - A .env file in the working directory or config directory
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every option at its default",
	Long: `Write a configuration file with every option at its default value.

The file is written to the --config path, or to the user config directory
when --config is not given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load configuration from every source and report each invalid value.

This command checks:
  - YAML syntax
  - Required endpoints
  - Value ranges for timeouts, retries, concurrency and rate limits
  - Token store and log level names`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func defaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "bhascraper", "config.yaml")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	if !ui.Quiet {
		fmt.Fprintln(ui.Out, "\nNext steps:")
		fmt.Fprintln(ui.Out, "1. Adjust pipeline.concurrency, rate_limit and token.store to taste")
		fmt.Fprintln(ui.Out, "2. Run 'bhascraper config validate' to check the file")
		fmt.Fprintln(ui.Out, "3. Fetch with 'bhascraper fetch --from 2024-03-01 --to 2024-03-07'")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), string(data))

	dataDir, err := config.DataDir()
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\n# data directory (checkpoints, token file): %s\n", dataDir)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration is invalid")
		for _, line := range validationErrors(err) {
			fmt.Fprintf(ui.Out, "  - %s\n", line)
		}
		return errors.New("validation failed")
	}

	ui.PrintSuccess("Configuration is valid")
	return nil
}

// validationErrors splits a joined validation error into its parts
func validationErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return strings.Split(err.Error(), "\n")
}
