package dashboard

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
)

// fixtureInput pins Now to a Wednesday so this-week/last-week labels are
// stable: 2024-01-10 is in 2024-W02, the week before is 2024-W01.
func fixtureInput() Input {
	return Input{
		Now:   time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		Tiers: []int{7, 14, 30},
		Issues: []tracker.Issue{
			{Key: "OPS-1", Status: "Done"},
			{Key: "OPS-2", Status: "In Progress"},
			{Key: "OPS-3", Status: "In Review"},
		},
		Events: []movement.Event{
			{EventID: "aaa", IssueKey: "OPS-1", FromStatus: "To Do", ToStatus: "Done", ChangedAt: "2024-01-05T10:00:00.000+0000", ChangedBy: "dana"},
			{EventID: "bbb", IssueKey: "OPS-2", FromStatus: "To Do", ToStatus: "In Progress", ChangedAt: "2024-01-08T10:00:00.000+0000", ChangedBy: "alex"},
		},
		Tables: []metrics.Table{
			{Name: "throughput", Header: []string{"week", "tickets_done"}, Rows: [][]any{{"2024-W01", 3}}},
			{Name: "submitted_for_signature", Header: []string{"week", "submitted_for_signature"}, Rows: [][]any{
				{"2024-W01", 2},
				{"2024-W02", 5},
			}},
			{Name: "cycle_time", Header: []string{"group", "count", "cycle_avg_h", "cycle_p50_h", "cycle_p90_h", "lead_avg_h", "lead_p50_h", "lead_p90_h"}, Rows: [][]any{
				{"Overall", 3, 48.0, 48.0, 72.0, 96.0, 96.0, 120.0},
				{"Assignee: Dana", 2, 36.0, 36.0, 48.0, 72.0, 72.0, 96.0},
			}},
			{Name: "wip", Header: []string{"status", "wip_count"}, Rows: [][]any{
				{"In Progress", 4},
				{"In Review", 2},
			}},
			{Name: "aging_wip", Header: []string{"issue_key", "current_status", "assignee", "team", "days_in_status", "bucket"}, Rows: [][]any{
				{"OPS-2", "In Progress", "alex", "Platform", 8, ">7d"},
				{"OPS-3", "In Review", "dana", "Platform", 40, ">30d"},
			}},
			{Name: "reopen_rate", Header: []string{"week", "tickets_done", "reopens", "reopen_rate_pct"}, Rows: [][]any{
				{"2024-W01", 3, 1, 33.3},
			}},
			{Name: "time_in_status", Header: []string{"status", "count", "avg_hours", "p50_hours", "p90_hours"}, Rows: [][]any{
				{"To Do", 3, 24.0, 24.0, 36.0},
				{"In Progress", 2, 72.0, 72.0, 96.0},
			}},
		},
	}
}

func TestRenderContainsKPIs(t *testing.T) {
	r, err := NewRenderer(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	html, err := r.Render(fixtureInput())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	page := string(html)

	for _, want := range []string{
		// 5 submitted this week (2024-W02), up 3 on last week's 2.
		">5</div>",
		"↑ 3 vs last week",
		// Overall cycle 48h = 2.0 days, p90 72h = 3.0 days.
		"2.0<span",
		"p50: 2.0d",
		"p90: 3.0d",
		// WIP total 4+2.
		">6</div>",
		// Latest reopen rate.
		">33.3<span",
		"last sync: 2024-01-10 12:00 UTC",
		"3 issues",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
}

func TestRenderStuckTiers(t *testing.T) {
	r, _ := NewRenderer(zerolog.Nop())
	html, err := r.Render(fixtureInput())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	page := string(html)

	// 8d and 40d issues: both exceed 7, only 40d exceeds 14 and 30.
	for _, want := range []string{"stuck &gt;7 days", "stuck &gt;14 days", "stuck &gt;30 days"} {
		if !strings.Contains(page, want) {
			t.Errorf("missing tier label %q", want)
		}
	}
}

func TestStuckTiersCountTierBoundary(t *testing.T) {
	// Exactly-N-day issues land in the >=N aging bucket, so the matching
	// card must count them too.
	in := fixtureInput()
	for i, table := range in.Tables {
		if table.Name == "aging_wip" {
			in.Tables[i].Rows = [][]any{
				{"OPS-2", "In Progress", "alex", "Platform", 7, ">7d"},
				{"OPS-3", "In Review", "dana", "Platform", 14, ">14d"},
			}
		}
	}

	page := buildPage(in)
	wantCounts := []int{2, 1, 0} // tiers 7, 14, 30
	if len(page.StuckTiers) != len(wantCounts) {
		t.Fatalf("stuck tiers = %v", page.StuckTiers)
	}
	for i, want := range wantCounts {
		if page.StuckTiers[i].Count != want {
			t.Errorf("tier %q count = %d, want %d", page.StuckTiers[i].Label, page.StuckTiers[i].Count, want)
		}
	}
}

func TestRenderAgingSortedMostStuckFirst(t *testing.T) {
	r, _ := NewRenderer(zerolog.Nop())
	html, err := r.Render(fixtureInput())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	page := string(html)

	i3 := strings.Index(page, "OPS-3")
	i2 := strings.Index(page, `"OPS-2"`)
	if i3 < 0 || i2 < 0 {
		t.Fatal("aging payload missing issue keys")
	}
	agingStart := strings.Index(page, "const AGING")
	rel3 := strings.Index(page[agingStart:], "OPS-3")
	rel2 := strings.Index(page[agingStart:], "OPS-2")
	if rel3 > rel2 {
		t.Error("aging rows not sorted by days_in_status descending")
	}
}

func TestRenderByteStable(t *testing.T) {
	r, _ := NewRenderer(zerolog.Nop())
	in := fixtureInput()
	first, err := r.Render(in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := r.Render(in)
	if err != nil {
		t.Fatalf("Render again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("render output not byte-stable for identical input")
	}
}

func TestRenderEmptyInput(t *testing.T) {
	r, _ := NewRenderer(zerolog.Nop())
	html, err := r.Render(Input{Now: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(html), "0 issues") {
		t.Error("empty render missing zero issue count")
	}
}

func TestWriteFileCreatesDirectory(t *testing.T) {
	r, _ := NewRenderer(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "dashboard", "index.html")

	if err := r.WriteFile(fixtureInput(), path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "<!DOCTYPE html>") {
		t.Error("written file is not the rendered page")
	}
}
