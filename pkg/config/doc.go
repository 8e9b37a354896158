// Package config loads scraper configuration from defaults, a YAML file,
// .env files, BHASCRAPER_* environment variables and command line flags.
//
// Precedence, highest first:
//
//	flags > environment > .env > config file > defaults
//
// The config file is looked up as ./.bhascraper.yaml, ./.bhascraper.yml and
// $XDG_CONFIG_HOME/bhascraper/config.yaml when no explicit path is given.
//
// Example:
//
//	cfg, err := config.Load("", map[string]interface{}{
//	    "concurrency": 8,
//	    "log-level":   "debug",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
