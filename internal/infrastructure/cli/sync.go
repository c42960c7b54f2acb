package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/application"
	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/infrastructure/dashboard"
	"github.com/jiralens/jiralens/internal/infrastructure/jira"
	"github.com/jiralens/jiralens/internal/infrastructure/notify"
	"github.com/jiralens/jiralens/internal/infrastructure/sheets"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

var (
	syncDryRun bool
	syncFull   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch Jira history, derive events, publish metrics",
	Long: `Sync runs the full pipeline: fetch issues and changelogs updated since
the last run, merge them into the local cache, derive movement events,
aggregate the metric tables, publish everything to Google Sheets, and
render the HTML dashboard.

With --dry-run nothing is written to Sheets or the cache; the derived
tables are summarized on stdout instead.`,
	RunE: runSyncCmd,
}

func runSyncCmd(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireJira(); err != nil {
		return err
	}

	ctx := cmd.Context()

	var sink application.Publisher
	if syncDryRun {
		sink = nopSink{}
	} else {
		if err := cfg.RequireGoogle(); err != nil {
			return err
		}
		sink, err = sheets.NewSink(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("sheets: %w", err)
		}
	}

	renderer, err := dashboard.NewRenderer(log)
	if err != nil {
		return err
	}
	notifier, err := notify.NewRegistry(cfg.Notify.Adapters, log)
	if err != nil {
		return err
	}

	svc := application.NewSyncService(
		cfg,
		storage.NewFileStore(cfg.Cache.Dir, log),
		storage.NewEventJournal(cfg.Cache.Dir),
		jira.NewClient(cfg.Jira, cfg.Team.Field, log),
		sink,
		renderer,
		notifier,
		log,
	)

	result, err := svc.Run(ctx, application.RunOptions{
		DryRun:      syncDryRun,
		FullRefetch: syncFull,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Run %s finished in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Printf("Issues:     %d\n", result.Issues)
	fmt.Printf("New events: %d\n", result.NewEvents)
	if result.OrphanedExits > 0 {
		fmt.Printf("Orphaned status exits: %d (backfill window starts mid-flight)\n", result.OrphanedExits)
	}

	if syncDryRun {
		fmt.Println("\nDry run: nothing written. Derived tables:")
		for _, t := range result.Tables {
			fmt.Printf("- %-28s %d rows\n", t.Name, len(t.Rows))
		}
	}
	return nil
}

// nopSink satisfies application.Publisher for dry runs. The run machine's
// guard keeps publishing off the path, so none of these should ever fire.
type nopSink struct{}

func (nopSink) EnsureTabs(context.Context) error                            { return nil }
func (nopSink) ReplaceTab(context.Context, string, [][]any) error           { return nil }
func (nopSink) AppendEvents(context.Context, []movement.Event) (int, error) { return 0, nil }
func (nopSink) WriteMetrics(context.Context, []metrics.Table) error         { return nil }

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Fetch and derive but write nothing to Sheets or the cache")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Ignore the cached last-sync timestamp and refetch the whole backfill window")
	RootCmd.AddCommand(syncCmd)
}
