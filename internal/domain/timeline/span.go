// Package timeline reconstructs, from the movement event log, the contiguous
// intervals each issue spent occupying each recognized lifecycle state.
package timeline

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jiralens/jiralens/internal/domain/metrics"
	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
)

// Span is one reconstructed occupancy interval: the issue held Status from
// EnteredAt until ExitedAt. Days is clamped at zero on clock skew.
type Span struct {
	IssueKey  string
	Status    string
	EnteredAt time.Time
	ExitedAt  time.Time
	Days      float64
}

// Result carries both table shapes plus the count of spans that had to be
// closed at the next event's timestamp because no matching exit transition
// was recorded. That closure is a heuristic, not ground truth; callers
// surface the count instead of absorbing it silently.
type Result struct {
	Long          metrics.Table
	Matrix        metrics.Table
	OrphanedExits int
}

// Reconstruct replays each issue's chronologically sorted events into status
// spans and aggregates them into the long table (one row per visit) and the
// per-issue wide matrix (one column per recognized state). Unparseable
// timestamps skip the affected span, never the run.
func Reconstruct(events []movement.Event, issues []tracker.Issue, rules tracker.Rules, now time.Time) Result {
	recognized := rules.RecognizedSet()
	byIssue := movement.GroupByIssue(events)

	issueMap := make(map[string]tracker.Issue, len(issues))
	for _, i := range issues {
		issueMap[i.Key] = i
	}

	var spans []Span
	orphaned := 0
	for key, evs := range byIssue {
		issueSpans, issueOrphans := replayIssue(key, evs, issueMap[key], recognized, now)
		spans = append(spans, issueSpans...)
		orphaned += issueOrphans
	}

	return Result{
		Long:          longTable(spans),
		Matrix:        matrixTable(spans, byIssue, issues, issueMap, rules, now),
		OrphanedExits: orphaned,
	}
}

// replayIssue walks one issue's ordered events. Each event entering a
// recognized state opens a span; the exit is the first later event leaving
// that state, or now while the issue still holds it, or the next event's
// timestamp when the exit transition was never recorded (orphaned).
func replayIssue(key string, evs []movement.Event, issue tracker.Issue, recognized map[string]bool, now time.Time) ([]Span, int) {
	var spans []Span
	orphaned := 0

	for i, ev := range evs {
		status := strings.ToUpper(ev.ToStatus)
		if !recognized[status] {
			continue
		}
		entered, ok := tracker.ParseTime(ev.ChangedAt)
		if !ok {
			continue
		}

		var exited time.Time
		exitFound := false
		for _, next := range evs[i+1:] {
			if strings.ToUpper(next.FromStatus) == status {
				if ts, ok := tracker.ParseTime(next.ChangedAt); ok {
					exited, exitFound = ts, true
				}
				break
			}
		}
		if !exitFound {
			if strings.ToUpper(issue.Status) == status {
				exited = now
			} else if i+1 < len(evs) {
				// The state was left without a matching transition record.
				// Close at the next event so the span cannot stay open
				// indefinitely.
				orphaned++
				if ts, ok := tracker.ParseTime(evs[i+1].ChangedAt); ok {
					exited = ts
				} else {
					exited = now
				}
			} else {
				exited = now
			}
		}

		spans = append(spans, Span{
			IssueKey:  key,
			Status:    status,
			EnteredAt: entered,
			ExitedAt:  exited,
			Days:      clampDays(entered, exited),
		})
	}

	// Time spent in the original state before the first tracked transition.
	if len(evs) > 0 {
		first := evs[0]
		fromStatus := strings.ToUpper(first.FromStatus)
		if recognized[fromStatus] {
			created, okCreated := tracker.ParseTime(issue.Created)
			firstAt, okFirst := tracker.ParseTime(first.ChangedAt)
			if okCreated && okFirst {
				spans = append(spans, Span{
					IssueKey:  key,
					Status:    fromStatus,
					EnteredAt: created,
					ExitedAt:  firstAt,
					Days:      clampDays(created, firstAt),
				})
			}
		}
	}

	return spans, orphaned
}

func clampDays(start, end time.Time) float64 {
	d := end.Sub(start).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func longTable(spans []Span) metrics.Table {
	t := metrics.Table{
		Name:   "status_durations_long",
		Header: []string{"issue_key", "status", "entered_at", "exited_at", "days_in_status"},
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].IssueKey != sorted[j].IssueKey {
			return sorted[i].IssueKey < sorted[j].IssueKey
		}
		return sorted[i].EnteredAt.Before(sorted[j].EnteredAt)
	})
	for _, s := range sorted {
		t.Rows = append(t.Rows, []any{
			s.IssueKey,
			s.Status,
			s.EnteredAt.Format(time.RFC3339),
			s.ExitedAt.Format(time.RFC3339),
			metrics.Round2(s.Days),
		})
	}
	return t
}

func matrixTable(spans []Span, byIssue map[string][]movement.Event, issues []tracker.Issue, issueMap map[string]tracker.Issue, rules tracker.Rules, now time.Time) metrics.Table {
	header := append([]string{"issue_key"}, rules.Recognized...)
	header = append(header,
		"total_days", "current_status", "current_assignee",
		"accounting_due_date", "days_to_due",
		"top_stuck_status", "max_days_in_status")
	t := metrics.Table{Name: "status_matrix", Header: header}

	// Accumulated days per (issue, upper-cased status).
	totals := make(map[string]map[string]float64)
	for _, s := range spans {
		if totals[s.IssueKey] == nil {
			totals[s.IssueKey] = make(map[string]float64)
		}
		totals[s.IssueKey][s.Status] += metrics.Round2(s.Days)
	}

	keySet := make(map[string]struct{}, len(byIssue)+len(issues))
	for k := range byIssue {
		keySet[k] = struct{}{}
	}
	for _, i := range issues {
		keySet[i.Key] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		issue := issueMap[key]

		dueStr := issue.TeamField
		var daysToDue any = ""
		if due, ok := tracker.ParseDueDate(dueStr); ok {
			// Rounded, not truncated: an issue 9.6 days overdue is 10 days
			// overdue, not 9.
			daysToDue = int(math.Round(due.Sub(now).Hours() / 24))
		}

		row := []any{key}
		total := 0.0
		topStatus := ""
		maxDays := 0.0
		for _, status := range rules.Recognized {
			days := metrics.Round2(totals[key][strings.ToUpper(status)])
			row = append(row, days)
			total += days
			// First state in enumeration order wins ties.
			if topStatus == "" || days > maxDays {
				topStatus, maxDays = status, days
			}
		}
		row = append(row,
			metrics.Round2(total),
			strings.ToUpper(issue.Status),
			issue.Assignee,
			dueStr,
			daysToDue,
			topStatus,
			metrics.Round2(maxDays),
		)
		t.Rows = append(t.Rows, row)
	}
	return t
}
