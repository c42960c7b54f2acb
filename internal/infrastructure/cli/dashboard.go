package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/infrastructure/dashboard"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

var dashboardOutput string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the HTML dashboard from the cached corpus",
	Long: `Dashboard recomputes the metric tables from the local cache and writes
the static HTML page. No network access: run 'jiralens sync' first to
refresh the cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		store := storage.NewFileStore(cfg.Cache.Dir, log)
		corpus, _, err := store.Load(cmd.Context(), cfg.Fingerprint())
		if err != nil {
			return fmt.Errorf("load cache: %w (run 'jiralens sync' first)", err)
		}

		events := movement.Derive(corpus.Issues, corpus.Changelogs)
		issues := corpus.IssueList()
		now := time.Now().UTC()
		tables := metrics.Aggregate(events, issues, cfg.Rules(), now)

		renderer, err := dashboard.NewRenderer(log)
		if err != nil {
			return err
		}

		output := cfg.Dashboard.Output
		if dashboardOutput != "" {
			output = dashboardOutput
		}
		if err := renderer.WriteFile(dashboard.Input{
			Issues: issues,
			Events: events,
			Tables: tables,
			Tiers:  cfg.Aging.Tiers,
			Now:    now,
		}, output); err != nil {
			return err
		}

		fmt.Printf("Dashboard written: %s (%d issues, %d events)\n", output, len(issues), len(events))
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVarP(&dashboardOutput, "output", "o", "", "Output path (default: dashboard.output from config)")
	RootCmd.AddCommand(dashboardCmd)
}
