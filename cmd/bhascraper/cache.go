package main

import (
	"fmt"
	"os"
	"strings"

	"bhascraper/pkg/cache"
	"bhascraper/pkg/ui"

	"github.com/spf13/cobra"
)

// cacheCmd groups response cache maintenance
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
	Long: `Every successful API response is stored as one JSON file keyed by the request
URL. Reruns over the same range read from the cache instead of the network.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		n, err := c.Clear()
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Removed %d cached responses from %s", n, c.Dir()))
		return nil
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path <url>",
	Short: "Print the cache file for a request URL",
	Long: `Print the file a request is cached under. The argument is a full URL or a
path relative to the API base URL, for example /racehorses/123456.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c, err := cache.New(cfg.Cache.Directory)
		if err != nil {
			return err
		}

		key, err := cache.KeyFor(resolveURL(cfg.API.BaseURL, args[0]))
		if err != nil {
			return err
		}
		path := c.Path(key)
		fmt.Fprintln(cmd.OutOrStdout(), path)
		if _, err := os.Stat(path); err != nil {
			ui.PrintWarning("not cached yet")
		}
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache location and size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		n, err := c.Len()
		if err != nil {
			return err
		}
		ui.PrintInfo("Directory", c.Dir())
		ui.PrintInfo("Entries", fmt.Sprintf("%d", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cachePathCmd, cacheStatsCmd)
}

func openCache() (*cache.Cache, error) {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.Cache.Directory, cache.WithMemory(cfg.Cache.MemoryEntries))
}

// resolveURL joins a relative API path onto baseURL
func resolveURL(baseURL, arg string) string {
	if strings.Contains(arg, "://") {
		return arg
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(arg, "/")
}
