// Package dashboard renders a self-contained HTML dashboard from the
// pipeline's metric tables, movement events, and issue snapshot. Rendering
// is a pure function of its inputs plus the render instant, so a fixed
// clock yields byte-identical output.
package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
)

//go:embed templates/*
var templatesFS embed.FS

// Input is everything a render needs. Now is injected so tests can pin it.
type Input struct {
	Issues []tracker.Issue
	Events []movement.Event
	Tables []metrics.Table
	Tiers  []int
	Now    time.Time
}

// Renderer turns pipeline state into a static HTML page.
type Renderer struct {
	tmpl *template.Template
	log  zerolog.Logger
}

func NewRenderer(log zerolog.Logger) (*Renderer, error) {
	funcMap := template.FuncMap{
		"json": toJSON,
	}
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, log: log.With().Str("component", "dashboard").Logger()}, nil
}

// Render produces the full page.
func (r *Renderer) Render(in Input) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "index.html", buildPage(in)); err != nil {
		return nil, fmt.Errorf("render dashboard: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders and writes the page, creating the output directory.
func (r *Renderer) WriteFile(in Input, path string) error {
	html, err := r.Render(in)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dashboard dir: %w", err)
		}
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return fmt.Errorf("write dashboard: %w", err)
	}
	r.log.Info().Str("path", path).Msg("dashboard written")
	return nil
}

// pageData is the template's whole world.
type pageData struct {
	LastSync    string
	TotalIssues int

	SigThis      int
	SigTrend     string
	SigTrendUp   bool
	CycleAvgD    string
	CycleP50D    string
	CycleP90D    string
	TotalWIP     int
	ReopenRate   string
	StuckTiers   []stuckTier
	StuckExcl    string

	Submitted  []map[string]any
	Throughput []map[string]any
	WIP        []map[string]any
	Aging      []map[string]any
	Reopen     []map[string]any
	TIS        []map[string]any
	Assignee   []map[string]any
	Events     []map[string]any
}

type stuckTier struct {
	Label string
	Count int
}

func buildPage(in Input) pageData {
	submitted := rowMaps(tableByName(in.Tables, "submitted_for_signature"))
	cycle := rowMaps(tableByName(in.Tables, "cycle_time"))
	wip := rowMaps(tableByName(in.Tables, "wip"))
	aging := rowMaps(tableByName(in.Tables, "aging_wip"))
	reopen := rowMaps(tableByName(in.Tables, "reopen_rate"))
	tis := rowMaps(tableByName(in.Tables, "time_in_status"))

	p := pageData{
		LastSync:    in.Now.UTC().Format("2006-01-02 15:04 UTC"),
		TotalIssues: len(in.Issues),
		Throughput:  rowMaps(tableByName(in.Tables, "throughput")),
		Submitted:   submitted,
		Reopen:      reopen,
	}

	thisWeek := tracker.WeekLabel(in.Now)
	lastWeek := tracker.WeekLabel(in.Now.AddDate(0, 0, -7))
	p.SigThis = weekVal(submitted, thisWeek, "submitted_for_signature")
	sigLast := weekVal(submitted, lastWeek, "submitted_for_signature")
	delta := p.SigThis - sigLast
	p.SigTrendUp = delta >= 0
	arrow := "↑"
	if delta < 0 {
		arrow = "↓"
	}
	p.SigTrend = fmt.Sprintf("%s %d vs last week", arrow, abs(delta))

	for _, row := range cycle {
		if row["group"] == "Overall" {
			p.CycleAvgD = hoursToDays(row["cycle_avg_h"])
			p.CycleP50D = hoursToDays(row["cycle_p50_h"])
			p.CycleP90D = hoursToDays(row["cycle_p90_h"])
			break
		}
	}

	for _, row := range wip {
		p.TotalWIP += int(num(row["wip_count"]))
	}
	if len(wip) > 12 {
		wip = wip[:12]
	}
	p.WIP = wip

	p.ReopenRate = "—"
	if len(reopen) > 0 {
		if v := reopen[len(reopen)-1]["reopen_rate_pct"]; v != nil && v != "" {
			p.ReopenRate = fmt.Sprint(v)
		}
	}

	sort.SliceStable(aging, func(i, j int) bool {
		di, dj := num(aging[i]["days_in_status"]), num(aging[j]["days_in_status"])
		if di != dj {
			return di > dj
		}
		return fmt.Sprint(aging[i]["issue_key"]) < fmt.Sprint(aging[j]["issue_key"])
	})
	p.Aging = aging

	for _, tier := range in.Tiers {
		count := 0
		for _, row := range aging {
			// Same boundary as the aging_wip buckets: N days qualifies for
			// the >=N tier.
			if num(row["days_in_status"]) >= float64(tier) {
				count++
			}
		}
		p.StuckTiers = append(p.StuckTiers, stuckTier{
			Label: fmt.Sprintf("stuck >%d days", tier),
			Count: count,
		})
	}
	if len(in.Tiers) > 0 {
		p.StuckExcl = fmt.Sprintf("Tickets stuck in the same status for %d+ days. Done and excluded statuses are omitted. Sorted most stuck first.", in.Tiers[0])
	}

	sort.SliceStable(tis, func(i, j int) bool {
		return num(tis[i]["avg_hours"]) > num(tis[j]["avg_hours"])
	})
	if len(tis) > 10 {
		tis = tis[:10]
	}
	p.TIS = tis

	assignee := make([]map[string]any, 0)
	for _, row := range cycle {
		if strings.HasPrefix(fmt.Sprint(row["group"]), "Assignee:") {
			assignee = append(assignee, row)
		}
	}
	if len(assignee) > 10 {
		assignee = assignee[:10]
	}
	p.Assignee = assignee

	p.Events = recentEvents(in.Events, 50)
	return p
}

// recentEvents flattens the most recent transitions for the activity table.
func recentEvents(events []movement.Event, limit int) []map[string]any {
	sorted := make([]movement.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChangedAt != sorted[j].ChangedAt {
			return sorted[i].ChangedAt > sorted[j].ChangedAt
		}
		return sorted[i].EventID < sorted[j].EventID
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	rows := make([]map[string]any, 0, len(sorted))
	for _, e := range sorted {
		at := e.ChangedAt
		if len(at) >= 16 {
			at = strings.Replace(at[:16], "T", " ", 1)
		}
		rows = append(rows, map[string]any{
			"key":      e.IssueKey,
			"from":     e.FromStatus,
			"to":       e.ToStatus,
			"at":       at,
			"by":       e.ChangedBy,
			"assignee": e.Assignee,
			"team":     e.TeamField,
		})
	}
	return rows
}

func tableByName(tables []metrics.Table, name string) metrics.Table {
	for _, t := range tables {
		if t.Name == name {
			return t
		}
	}
	return metrics.Table{Name: name}
}

// rowMaps zips each row against the table header, the form the page's
// scripts consume.
func rowMaps(t metrics.Table) []map[string]any {
	rows := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]any, len(t.Header))
		for i, col := range t.Header {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		rows = append(rows, m)
	}
	return rows
}

func weekVal(rows []map[string]any, week, col string) int {
	for _, row := range rows {
		if row["week"] == week {
			return int(num(row[col]))
		}
	}
	return 0
}

// num coerces table cells, which may be int, float64, or numeric strings.
// Empty cells count as zero.
func num(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func hoursToDays(v any) string {
	if v == nil || v == "" {
		return "—"
	}
	return strconv.FormatFloat(num(v)/24, 'f', 1, 64)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func toJSON(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return template.JS("[]")
	}
	return template.JS(b)
}
