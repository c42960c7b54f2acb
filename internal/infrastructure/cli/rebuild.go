package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/application"
	"github.com/jiralens/jiralens/internal/infrastructure/sheets"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Restore the local cache from the Sheets snapshot tabs",
	Long: `Rebuild reads the raw issue and changelog snapshot tabs back out of the
spreadsheet and reconstructs the local cache from them. Use it after
losing the cache directory to avoid a full Jira refetch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireGoogle(); err != nil {
			return err
		}

		ctx := cmd.Context()
		sink, err := sheets.NewSink(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("sheets: %w", err)
		}

		store := storage.NewFileStore(cfg.Cache.Dir, log)
		issues, changelogs, err := application.NewRebuildService(cfg, store, sink, log).Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Cache rebuilt: %d issues, %d changelogs restored to %s\n", issues, changelogs, store.Dir())
		fmt.Println("Changed-at timestamps round-trip through the sheet; run 'jiralens sync' to resume incremental fetching.")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(rebuildCmd)
}
