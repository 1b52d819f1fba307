package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/config"
	"github.com/caliopendata/datasync/internal/logging"
)

var (
	cfgFile     string
	logLevel    string
	catalogPath string
	version     = "dev"
	commit      = "none"
	date        = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "datasync",
	Short: "Datasync — keep a relational store in sync with open-data extracts",
	Long: `Datasync reconciles a PostgreSQL store against a declarative entity
catalog and loads municipal budget, project and contract extracts
(JSON or CSV) into it, cleaning records on the way in.

Run 'datasync init' first to create a configuration file.`,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.datasync/datasync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "entity catalog file (default: built-in catalog)")
}

// loadConfig reads the config file honoring the --config flag.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.ExpandHome(config.DefaultPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// setupLogger builds the run logger, honoring the --log-level flag.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	return logging.Setup(level, cfg.Logging.Directory)
}
