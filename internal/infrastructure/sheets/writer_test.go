package sheets

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
	"github.com/jiralens/jiralens/internal/infrastructure/config"
)

type fakeAPI struct {
	tabs    []string
	values  map[string][][]any
	updates []string // "range" per Update call, in order
	cleared []string
}

func newFakeAPI(tabs ...string) *fakeAPI {
	return &fakeAPI{tabs: tabs, values: make(map[string][][]any)}
}

func (f *fakeAPI) Tabs(ctx context.Context) ([]string, error) { return f.tabs, nil }

func (f *fakeAPI) AddTab(ctx context.Context, title string, rows, cols int64) error {
	f.tabs = append(f.tabs, title)
	return nil
}

func (f *fakeAPI) Get(ctx context.Context, tab string) ([][]any, error) {
	return f.values[tab], nil
}

func (f *fakeAPI) Clear(ctx context.Context, tab string) error {
	f.cleared = append(f.cleared, tab)
	f.values[tab] = nil
	return nil
}

func (f *fakeAPI) Update(ctx context.Context, rangeA1 string, values [][]any) error {
	f.updates = append(f.updates, rangeA1)
	tab := strings.SplitN(rangeA1, "!", 2)[0]
	f.values[tab] = append(f.values[tab], values...)
	return nil
}

func (f *fakeAPI) Append(ctx context.Context, tab string, values [][]any) error {
	f.values[tab] = append(f.values[tab], values...)
	return nil
}

func testSink(f *fakeAPI) *Sink {
	cfg := &config.Config{}
	cfg.Jira.BaseURL = "https://example.atlassian.net"
	cfg.Jira.ProjectKeys = []string{"OPS"}
	cfg.Jira.BackfillFrom = "2024-01-01"
	cfg.Statuses.InProgress = []string{"In Progress"}
	cfg.Statuses.Done = []string{"Done"}
	cfg.Team.Field = "component"
	return newSinkWithAPI(f, cfg, zerolog.Nop())
}

func TestEnsureTabsCreatesMissing(t *testing.T) {
	f := newFakeAPI(TabDashboard, TabMetrics)
	s := testSink(f)

	if err := s.EnsureTabs(context.Background()); err != nil {
		t.Fatalf("EnsureTabs: %v", err)
	}

	have := make(map[string]bool)
	for _, tab := range f.tabs {
		have[tab] = true
	}
	for _, want := range requiredTabs {
		if !have[want] {
			t.Errorf("tab %q not created", want)
		}
	}

	// New movement_events tab starts with the column header.
	events := f.values[TabEvents]
	if len(events) != 1 || fmt.Sprint(events[0][0]) != "event_id" {
		t.Fatalf("movement_events header = %v", events)
	}

	// New config tab is seeded with labelled settings.
	cfgRows := f.values[TabConfig]
	if len(cfgRows) == 0 || fmt.Sprint(cfgRows[0][0]) != "CONFIGURATION" {
		t.Fatalf("config seed = %v", cfgRows)
	}
	var sawBase bool
	for _, row := range cfgRows {
		if len(row) >= 2 && row[0] == "jira_base_url" && row[1] == "https://example.atlassian.net" {
			sawBase = true
		}
	}
	if !sawBase {
		t.Error("config seed missing jira_base_url row")
	}
}

func TestEnsureTabsNeverReseeds(t *testing.T) {
	f := newFakeAPI(requiredTabs...)
	f.values[TabConfig] = [][]any{{"operator", "edited"}}
	s := testSink(f)

	if err := s.EnsureTabs(context.Background()); err != nil {
		t.Fatalf("EnsureTabs: %v", err)
	}
	if len(f.tabs) != len(requiredTabs) {
		t.Errorf("tabs grew to %d", len(f.tabs))
	}
	if got := f.values[TabConfig]; len(got) != 1 || got[0][0] != "operator" {
		t.Errorf("existing config tab was overwritten: %v", got)
	}
}

func TestReplaceTabChunks(t *testing.T) {
	f := newFakeAPI(TabIssues)
	s := testSink(f)

	rows := make([][]any, 1500)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("row-%d", i)}
	}
	if err := s.ReplaceTab(context.Background(), TabIssues, rows); err != nil {
		t.Fatalf("ReplaceTab: %v", err)
	}

	if len(f.cleared) != 1 || f.cleared[0] != TabIssues {
		t.Errorf("cleared = %v", f.cleared)
	}
	want := []string{TabIssues + "!A1", TabIssues + "!A1001"}
	if len(f.updates) != len(want) {
		t.Fatalf("updates = %v", f.updates)
	}
	for i, r := range want {
		if f.updates[i] != r {
			t.Errorf("update[%d] = %q, want %q", i, f.updates[i], r)
		}
	}
	if len(f.values[TabIssues]) != 1500 {
		t.Errorf("wrote %d rows", len(f.values[TabIssues]))
	}
}

func TestAppendEventsDeduplicates(t *testing.T) {
	old := movement.Event{IssueKey: "OPS-1", FromStatus: "To Do", ToStatus: "In Progress", ChangedAt: "2024-01-01T10:00:00.000+0000"}
	old.EventID = movement.EventID(old.IssueKey, old.ChangedAt, old.FromStatus, old.ToStatus)
	fresh := movement.Event{IssueKey: "OPS-1", FromStatus: "In Progress", ToStatus: "Done", ChangedAt: "2024-01-03T10:00:00.000+0000"}
	fresh.EventID = movement.EventID(fresh.IssueKey, fresh.ChangedAt, fresh.FromStatus, fresh.ToStatus)

	f := newFakeAPI(TabEvents)
	header := make([]any, len(movement.Columns))
	for i, c := range movement.Columns {
		header[i] = c
	}
	f.values[TabEvents] = [][]any{header, old.Row()}

	s := testSink(f)
	added, err := s.AppendEvents(context.Background(), []movement.Event{old, fresh})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if got := len(f.values[TabEvents]); got != 3 {
		t.Fatalf("tab has %d rows, want 3", got)
	}
	last := f.values[TabEvents][2]
	if last[0] != fresh.EventID {
		t.Errorf("appended row id = %v", last[0])
	}

	// Running the same batch again is a no-op.
	added, err = s.AppendEvents(context.Background(), []movement.Event{old, fresh})
	if err != nil {
		t.Fatalf("AppendEvents again: %v", err)
	}
	if added != 0 || len(f.values[TabEvents]) != 3 {
		t.Errorf("second run added %d rows", added)
	}
}

func TestWriteMetricsLayout(t *testing.T) {
	f := newFakeAPI(TabMetrics)
	s := testSink(f)

	tables := []metrics.Table{
		{Name: "throughput", Header: []string{"week", "tickets_done"}, Rows: [][]any{{"2024-W01", 2}}},
		{Name: "wip", Header: []string{"status", "count"}, Rows: nil},
	}
	if err := s.WriteMetrics(context.Background(), tables); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	rows := f.values[TabMetrics]
	wantFirstCells := []string{
		"=== THROUGHPUT ===",
		"week",
		"2024-W01",
		"", // separator
		"=== WIP ===",
		"status",
		"", // separator
	}
	if len(rows) != len(wantFirstCells) {
		t.Fatalf("metrics tab has %d rows, want %d: %v", len(rows), len(wantFirstCells), rows)
	}
	for i, want := range wantFirstCells {
		var got string
		if len(rows[i]) > 0 {
			got = fmt.Sprint(rows[i][0])
		}
		if got != want {
			t.Errorf("row %d first cell = %q, want %q", i, got, want)
		}
	}
}

func TestIssueRows(t *testing.T) {
	rows := IssueRows([]tracker.Issue{{
		Key: "OPS-1", Project: "OPS", IssueType: "Task", Status: "Done",
		Assignee: "Dana", Created: "2024-01-01T09:00:00.000+0000",
		Labels: "urgent", TeamField: "Platform",
	}})
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if len(rows[0]) != len(IssueColumns) || rows[0][0] != "key" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "OPS-1" || rows[1][5] != "Done" || rows[1][12] != "Platform" {
		t.Errorf("row = %v", rows[1])
	}
}

func TestChangelogRowsFlattensItems(t *testing.T) {
	changelogs := map[string][]tracker.ChangeEntry{
		"OPS-2": {{
			ID: "900", Author: "alex", Created: "2024-01-02T10:00:00.000+0000",
			Items: []tracker.ChangeItem{
				{Field: "status", FromString: "To Do", ToString: "In Progress"},
				{Field: "assignee", FromString: "", ToString: "alex"},
			},
		}},
		"OPS-1": {{
			ID: "800", Author: "dana", Created: "2024-01-01T10:00:00.000+0000",
			Items: []tracker.ChangeItem{{Field: "status", FromString: "To Do", ToString: "Done"}},
		}},
	}

	rows := ChangelogRows(changelogs)
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3 items", len(rows))
	}
	// Issue keys come out sorted.
	if rows[1][0] != "OPS-1" || rows[2][0] != "OPS-2" || rows[3][0] != "OPS-2" {
		t.Errorf("key order: %v %v %v", rows[1][0], rows[2][0], rows[3][0])
	}
	if rows[3][4] != "assignee" || rows[3][6] != "alex" {
		t.Errorf("item row = %v", rows[3])
	}
}

func TestReadTabStringifies(t *testing.T) {
	f := newFakeAPI(TabIssues)
	f.values[TabIssues] = [][]any{{"key", "count"}, {"OPS-1", 3}}
	s := testSink(f)

	rows, err := s.ReadTab(context.Background(), TabIssues)
	if err != nil {
		t.Fatalf("ReadTab: %v", err)
	}
	if rows[1][1] != "3" {
		t.Errorf("cell = %q", rows[1][1])
	}
}
