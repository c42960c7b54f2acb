// Package sheets publishes the pipeline's outputs to one Google
// spreadsheet, one tab per artifact, each with its own write strategy:
// full-replace for snapshots and metrics, append-only (deduplicated by
// event_id) for movement events, seed-once for config, hands-off for the
// operator's dashboard tab.
package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

const (
	TabConfig        = "config"
	TabIssues        = "raw_issues_snapshot"
	TabChangelog     = "raw_changelog_snapshot"
	TabEvents        = "movement_events"
	TabMetrics       = "metrics"
	TabDurationsLong = "status_durations_long"
	TabStatusMatrix  = "status_matrix"
	TabDashboard     = "dashboard"

	newTabRows  = 5000
	newTabCols  = 30
	updateChunk = 1000
)

var requiredTabs = []string{
	TabConfig, TabIssues, TabChangelog, TabEvents,
	TabMetrics, TabDurationsLong, TabStatusMatrix, TabDashboard,
}

// IssueColumns is the raw_issues_snapshot column order.
var IssueColumns = []string{
	"key", "project", "issue_type", "priority", "summary",
	"status", "assignee", "reporter", "created", "resolved",
	"labels", "components", "team_field",
}

// ChangelogColumns is the raw_changelog_snapshot column order.
var ChangelogColumns = []string{
	"issue_key", "changelog_id", "changed_at", "changed_by",
	"field", "from_value", "to_value",
}

// Sink writes to and reads from the configured spreadsheet.
type Sink struct {
	api api
	cfg *config.Config
	log zerolog.Logger
}

// NewSink authenticates with the configured service account and binds to
// the configured spreadsheet.
func NewSink(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Sink, error) {
	g, err := newGoogleAPI(ctx, cfg.Google.ServiceAccountFile, cfg.Google.SheetID)
	if err != nil {
		return nil, err
	}
	return newSinkWithAPI(g, cfg, log), nil
}

func newSinkWithAPI(a api, cfg *config.Config, log zerolog.Logger) *Sink {
	return &Sink{api: a, cfg: cfg, log: log.With().Str("component", "sheets").Logger()}
}

// EnsureTabs creates any missing tab. Existing tabs are never deleted; the
// config tab is seeded with labelled settings rows only on creation, and
// the movement_events tab gets its header the same way.
func (s *Sink) EnsureTabs(ctx context.Context) error {
	existing, err := s.api.Tabs(ctx)
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}

	for _, name := range requiredTabs {
		if have[name] {
			continue
		}
		if err := s.api.AddTab(ctx, name, newTabRows, newTabCols); err != nil {
			return err
		}
		s.log.Info().Str("tab", name).Msg("created tab")

		switch name {
		case TabEvents:
			header := make([]any, len(movement.Columns))
			for i, c := range movement.Columns {
				header[i] = c
			}
			if err := s.api.Append(ctx, TabEvents, [][]any{header}); err != nil {
				return err
			}
		case TabConfig:
			if err := s.api.Update(ctx, TabConfig+"!A1", s.configSeedRows()); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceTab clears the tab and writes rows in chunks.
func (s *Sink) ReplaceTab(ctx context.Context, tab string, rows [][]any) error {
	if err := s.api.Clear(ctx, tab); err != nil {
		return err
	}
	for start := 0; start < len(rows); start += updateChunk {
		end := start + updateChunk
		if end > len(rows) {
			end = len(rows)
		}
		rangeA1 := fmt.Sprintf("%s!A%d", tab, start+1)
		if err := s.api.Update(ctx, rangeA1, rows[start:end]); err != nil {
			return err
		}
	}
	s.log.Info().Str("tab", tab).Int("rows", len(rows)).Msg("replaced tab")
	return nil
}

// AppendEvents appends only events whose event_id is not already in the
// tab. Event identity is a content hash, so re-publishing an overlapping
// derivation never duplicates a row.
func (s *Sink) AppendEvents(ctx context.Context, events []movement.Event) (int, error) {
	existing, err := s.api.Get(ctx, TabEvents)
	if err != nil {
		return 0, fmt.Errorf("read existing events: %w", err)
	}

	seen := make(map[string]struct{})
	for i, row := range existing {
		if i == 0 || len(row) == 0 {
			continue // header
		}
		if id, ok := row[0].(string); ok {
			seen[id] = struct{}{}
		}
	}

	var rows [][]any
	for _, e := range events {
		if _, dup := seen[e.EventID]; dup {
			continue
		}
		rows = append(rows, e.Row())
	}
	if len(rows) == 0 {
		s.log.Info().Msg("movement_events: no new events to append")
		return 0, nil
	}

	for start := 0; start < len(rows); start += updateChunk {
		end := start + updateChunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.api.Append(ctx, TabEvents, rows[start:end]); err != nil {
			return 0, err
		}
	}
	s.log.Info().
		Int("appended", len(rows)).
		Int("skipped", len(events)-len(rows)).
		Msg("appended movement events")
	return len(rows), nil
}

// WriteMetrics stacks every table into the metrics tab: a banner row, the
// header, the rows, then a blank separator.
func (s *Sink) WriteMetrics(ctx context.Context, tables []metrics.Table) error {
	var all [][]any
	for _, t := range tables {
		all = append(all, []any{"=== " + strings.ToUpper(t.Name) + " ==="})
		all = append(all, t.Matrix()...)
		all = append(all, []any{})
	}
	return s.ReplaceTab(ctx, TabMetrics, all)
}

// ReadTab returns the tab's values as strings, for cache rebuilds.
func (s *Sink) ReadTab(ctx context.Context, tab string) ([][]string, error) {
	values, err := s.api.Get(ctx, tab)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprint(cell)
		}
	}
	return rows, nil
}

// IssueRows serializes issues for the snapshot tab.
func IssueRows(issues []tracker.Issue) [][]any {
	rows := make([][]any, 0, len(issues)+1)
	header := make([]any, len(IssueColumns))
	for i, c := range IssueColumns {
		header[i] = c
	}
	rows = append(rows, header)
	for _, i := range issues {
		rows = append(rows, []any{
			i.Key, i.Project, i.IssueType, i.Priority, i.Summary,
			i.Status, i.Assignee, i.Reporter, i.Created, i.Resolved,
			i.Labels, i.Components, i.TeamField,
		})
	}
	return rows
}

// ChangelogRows serializes the raw change history, one row per change item.
func ChangelogRows(changelogs map[string][]tracker.ChangeEntry) [][]any {
	header := make([]any, len(ChangelogColumns))
	for i, c := range ChangelogColumns {
		header[i] = c
	}
	rows := [][]any{header}

	keys := make([]string, 0, len(changelogs))
	for k := range changelogs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, entry := range changelogs[key] {
			for _, item := range entry.Items {
				rows = append(rows, []any{
					key, entry.ID, entry.Created, entry.Author,
					item.Field, item.FromString, item.ToString,
				})
			}
		}
	}
	return rows
}

func (s *Sink) configSeedRows() [][]any {
	c := s.cfg
	return [][]any{
		{"CONFIGURATION", "", ""},
		{"", "", ""},
		{"Setting", "Value", "Notes"},
		{"jira_base_url", c.Jira.BaseURL, "Your Jira Cloud URL"},
		{"project_keys", strings.Join(c.Jira.ProjectKeys, ","), "Comma-separated project keys"},
		{"backfill_from", c.Jira.BackfillFrom, "Start date for data pull"},
		{"in_progress_statuses", strings.Join(c.Statuses.InProgress, ","), "Statuses treated as In Progress"},
		{"done_statuses", strings.Join(c.Statuses.Done, ","), "Statuses treated as Done"},
		{"team_field", c.Team.Field, "component | label | custom field id"},
		{"last_run", "", "Auto-filled by script"},
	}
}
