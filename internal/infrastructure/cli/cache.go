package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local fetch cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the local cache holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		store := storage.NewFileStore(cfg.Cache.Dir, log)
		meta, err := store.LoadMeta(cmd.Context())
		if errors.Is(err, storage.ErrNoCache) {
			fmt.Printf("No usable cache in %s (%v)\n", store.Dir(), err)
			fmt.Println("The next sync will do a full backfill fetch.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Cache dir:   %s\n", store.Dir())
		fmt.Printf("Last sync:   %s\n", meta.LastSync)
		fmt.Printf("Issues:      %d\n", meta.IssueCount)
		fmt.Printf("Changelogs:  %d\n", meta.ChangelogCount)
		fmt.Printf("Fingerprint: %s", meta.ConfigHash)
		if meta.ConfigHash == cfg.Fingerprint() {
			fmt.Println(" (matches current config)")
		} else {
			fmt.Printf(" (current config is %s; next sync refetches from scratch)\n", cfg.Fingerprint())
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached corpus and event journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		store := storage.NewFileStore(cfg.Cache.Dir, log)
		if err := store.Invalidate(); err != nil {
			return err
		}
		fmt.Printf("Cache cleared: %s\n", store.Dir())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	RootCmd.AddCommand(cacheCmd)
}
