package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/tracker"
	"github.com/jiralens/jiralens/internal/infrastructure/config"
	"github.com/jiralens/jiralens/internal/infrastructure/sheets"
	"github.com/jiralens/jiralens/internal/infrastructure/storage"
)

// TabReader is the read-only slice of the sheets sink the rebuild needs.
type TabReader interface {
	ReadTab(ctx context.Context, tab string) ([][]string, error)
}

// RebuildService reconstructs the local cache from the spreadsheet's raw
// snapshot tabs, without touching Jira. Used to seed a fresh machine
// instead of re-fetching weeks of history.
type RebuildService struct {
	cfg    *config.Config
	store  Store
	reader TabReader
	log    zerolog.Logger
}

func NewRebuildService(cfg *config.Config, store Store, reader TabReader, log zerolog.Logger) *RebuildService {
	return &RebuildService{
		cfg:    cfg,
		store:  store,
		reader: reader,
		log:    log.With().Str("component", "rebuild").Logger(),
	}
}

// Run reads both raw tabs, rebuilds the corpus, and saves it under the
// current config fingerprint.
func (s *RebuildService) Run(ctx context.Context) (issues, changelogs int, err error) {
	issueRows, err := s.reader.ReadTab(ctx, sheets.TabIssues)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", sheets.TabIssues, err)
	}
	changelogRows, err := s.reader.ReadTab(ctx, sheets.TabChangelog)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", sheets.TabChangelog, err)
	}

	corpus := storage.NewCorpus()
	for _, row := range dataRows(issueRows, "key") {
		issue := issueFromRow(row)
		if issue.Key == "" {
			continue
		}
		corpus.Issues[issue.Key] = issue
	}
	for key, entries := range changelogsFromRows(dataRows(changelogRows, "issue_key")) {
		corpus.Changelogs[key] = entries
	}

	if len(corpus.Issues) == 0 {
		return 0, 0, fmt.Errorf("rebuild: %s tab is empty, nothing to restore", sheets.TabIssues)
	}

	if err := s.store.Save(ctx, corpus, s.cfg.Fingerprint()); err != nil {
		return 0, 0, fmt.Errorf("save rebuilt cache: %w", err)
	}
	s.log.Info().
		Int("issues", len(corpus.Issues)).
		Int("changelogs", len(corpus.Changelogs)).
		Msg("cache rebuilt from sheet")
	return len(corpus.Issues), len(corpus.Changelogs), nil
}

// dataRows strips the header row when present. Tabs rebuilt from older
// exports sometimes lack it.
func dataRows(rows [][]string, headerFirstCol string) [][]string {
	if len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] == headerFirstCol {
		return rows[1:]
	}
	return rows
}

func issueFromRow(row []string) tracker.Issue {
	return tracker.Issue{
		Key:        cell(row, 0),
		Project:    cell(row, 1),
		IssueType:  cell(row, 2),
		Priority:   cell(row, 3),
		Summary:    cell(row, 4),
		Status:     cell(row, 5),
		Assignee:   cell(row, 6),
		Reporter:   cell(row, 7),
		Created:    cell(row, 8),
		Resolved:   cell(row, 9),
		Labels:     cell(row, 10),
		Components: cell(row, 11),
		TeamField:  cell(row, 12),
	}
}

// changelogsFromRows regroups the flattened per-item rows back into
// entries, keyed by (issue_key, changelog_id). Item order within an entry
// follows row order, which is how they were exported.
func changelogsFromRows(rows [][]string) map[string][]tracker.ChangeEntry {
	changelogs := make(map[string][]tracker.ChangeEntry)
	index := make(map[string]int) // issueKey|entryID -> position in slice

	for _, row := range rows {
		issueKey := cell(row, 0)
		entryID := cell(row, 1)
		if issueKey == "" || entryID == "" {
			continue
		}
		item := tracker.ChangeItem{
			Field:      cell(row, 4),
			FromString: cell(row, 5),
			ToString:   cell(row, 6),
		}

		groupKey := issueKey + "|" + entryID
		if pos, ok := index[groupKey]; ok {
			changelogs[issueKey][pos].Items = append(changelogs[issueKey][pos].Items, item)
			continue
		}
		changelogs[issueKey] = append(changelogs[issueKey], tracker.ChangeEntry{
			ID:      entryID,
			Created: cell(row, 2),
			Author:  cell(row, 3),
			Items:   []tracker.ChangeItem{item},
		})
		index[groupKey] = len(changelogs[issueKey]) - 1
	}
	return changelogs
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
