// Package cli wires the cobra command tree for the jiralens binary.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/infrastructure/config"
	"github.com/jiralens/jiralens/internal/infrastructure/logging"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	cfgPath   string
	logFormat string
)

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:     "jiralens",
	Version: Version,
	Short:   "Turn Jira change history into flow metrics",
	Long: `JiraLens pulls a Jira project's issue and changelog history, derives an
idempotent status-movement event log, and publishes throughput, cycle
time, WIP, aging, and reopen metrics to Google Sheets and a static HTML
dashboard.`,
	SilenceUsage: true,
}

// Execute runs the command tree. Called by main.main().
func Execute() error {
	return RootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, commit and build date",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jiralens %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to jiralens.yaml (default: $JIRALENS_CONFIG or ./jiralens.yaml)")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides config)")
	RootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configured yaml and builds the root logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	format := cfg.Log.Format
	if logFormat != "" {
		format = logFormat
	}
	return cfg, logging.New(cfg.Log.Level, format), nil
}
