package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/jiralens/jiralens/internal/domain/movement"
	"github.com/jiralens/jiralens/internal/domain/tracker"
)

// Aggregate computes every KPI table from (events, issues, rules) at the
// evaluation instant now. Unparseable timestamps skip the affected data
// point only; every table is returned even when empty.
//
// Table order: throughput, submitted_for_signature, cycle_time, wip,
// aging_wip, reopen_rate, time_in_status.
func Aggregate(events []movement.Event, issues []tracker.Issue, rules tracker.Rules, now time.Time) []Table {
	byIssue := movement.GroupByIssue(events)
	issueMap := make(map[string]tracker.Issue, len(issues))
	for _, i := range issues {
		issueMap[i.Key] = i
	}

	throughput := weeklyCount(events, func(e movement.Event) bool {
		return rules.Done.Has(e.ToStatus)
	})

	return []Table{
		throughputTable(throughput),
		milestoneTable(events, rules),
		cycleTimeTable(byIssue, issueMap, rules),
		wipTable(issues, rules),
		agingTable(byIssue, issues, rules, now),
		reopenTable(events, throughput, rules),
		timeInStatusTable(byIssue, now),
	}
}

func weeklyCount(events []movement.Event, match func(movement.Event) bool) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		if !match(e) {
			continue
		}
		ts, ok := tracker.ParseTime(e.ChangedAt)
		if !ok {
			continue
		}
		counts[tracker.WeekLabel(ts)]++
	}
	return counts
}

func sortedWeeks(counts map[string]int) []string {
	weeks := make([]string, 0, len(counts))
	for w := range counts {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)
	return weeks
}

func throughputTable(counts map[string]int) Table {
	t := Table{Name: "throughput", Header: []string{"week", "tickets_done"}}
	for _, week := range sortedWeeks(counts) {
		t.Rows = append(t.Rows, []any{week, counts[week]})
	}
	return t
}

func milestoneTable(events []movement.Event, rules tracker.Rules) Table {
	counts := weeklyCount(events, func(e movement.Event) bool {
		return rules.IsMilestone(e.ToStatus)
	})
	t := Table{Name: "submitted_for_signature", Header: []string{"week", "submitted_for_signature"}}
	for _, week := range sortedWeeks(counts) {
		t.Rows = append(t.Rows, []any{week, counts[week]})
	}
	return t
}

// cycleSample is one resolved issue's cycle/lead measurement. A nil hours
// pointer means the component could not be computed (no in-progress
// transition, or unparseable created); the issue still counts toward the
// group size, matching how the sheet has always reported it.
type cycleSample struct {
	issueKey string
	assignee string
	team     string
	cycleH   *float64
	leadH    *float64
}

func cycleTimeTable(byIssue map[string][]movement.Event, issueMap map[string]tracker.Issue, rules tracker.Rules) Table {
	var samples []cycleSample

	keys := make([]string, 0, len(byIssue))
	for k := range byIssue {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var firstInProgress, firstDone *time.Time
		for _, e := range byIssue[key] {
			ts, ok := tracker.ParseTime(e.ChangedAt)
			if !ok {
				continue
			}
			if firstInProgress == nil && rules.InProgress.Has(e.ToStatus) {
				t := ts
				firstInProgress = &t
			}
			if firstDone == nil && rules.Done.Has(e.ToStatus) {
				t := ts
				firstDone = &t
			}
		}
		if firstDone == nil {
			continue
		}

		issue := issueMap[key]
		s := cycleSample{issueKey: key, assignee: issue.Assignee, team: issue.TeamField}
		if firstInProgress != nil {
			h := firstDone.Sub(*firstInProgress).Hours()
			s.cycleH = &h
		}
		if created, ok := tracker.ParseTime(issue.Created); ok {
			h := firstDone.Sub(created).Hours()
			s.leadH = &h
		}
		samples = append(samples, s)
	}

	t := Table{Name: "cycle_time", Header: []string{
		"group", "count",
		"cycle_avg_h", "cycle_p50_h", "cycle_p90_h",
		"lead_avg_h", "lead_p50_h", "lead_p90_h",
	}}
	t.Rows = append(t.Rows, summarizeCycle("Overall", samples))

	byAssignee := make(map[string][]cycleSample)
	byTeam := make(map[string][]cycleSample)
	for _, s := range samples {
		assignee := s.assignee
		if assignee == "" {
			assignee = "(unassigned)"
		}
		team := s.team
		if team == "" {
			team = "(no team)"
		}
		byAssignee[assignee] = append(byAssignee[assignee], s)
		byTeam[team] = append(byTeam[team], s)
	}
	for _, name := range sortedKeys(byAssignee) {
		t.Rows = append(t.Rows, summarizeCycle("Assignee: "+name, byAssignee[name]))
	}
	for _, name := range sortedKeys(byTeam) {
		t.Rows = append(t.Rows, summarizeCycle("Team: "+name, byTeam[name]))
	}
	return t
}

func summarizeCycle(group string, samples []cycleSample) []any {
	var cycleHours, leadHours []float64
	for _, s := range samples {
		if s.cycleH != nil {
			cycleHours = append(cycleHours, *s.cycleH)
		}
		if s.leadH != nil {
			leadHours = append(leadHours, *s.leadH)
		}
	}
	return []any{
		group,
		len(samples),
		meanCell(cycleHours),
		Percentile(cycleHours, 50),
		Percentile(cycleHours, 90),
		meanCell(leadHours),
		Percentile(leadHours, 50),
		Percentile(leadHours, 90),
	}
}

// meanCell renders an empty cell rather than a misleading 0 when the sample
// is empty.
func meanCell(sample []float64) any {
	m, ok := Mean(sample)
	if !ok {
		return ""
	}
	return m
}

func wipTable(issues []tracker.Issue, rules tracker.Rules) Table {
	counts := make(map[string]int)
	for _, issue := range issues {
		if rules.Done.Has(issue.Status) {
			continue
		}
		status := issue.Status
		if status == "" {
			status = "(unknown)"
		}
		counts[status]++
	}

	type wipRow struct {
		status string
		count  int
	}
	rows := make([]wipRow, 0, len(counts))
	for s, c := range counts {
		rows = append(rows, wipRow{s, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].status < rows[j].status
	})

	t := Table{Name: "wip", Header: []string{"status", "wip_count"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.status, r.count})
	}
	return t
}

func agingTable(byIssue map[string][]movement.Event, issues []tracker.Issue, rules tracker.Rules, now time.Time) Table {
	type agingRow struct {
		key      string
		status   string
		assignee string
		team     string
		days     int
		bucket   string
	}
	var rows []agingRow

	for _, issue := range issues {
		current := issue.Status
		if rules.Done.Has(current) || rules.AgingExcluded(current) {
			continue
		}

		// Entry into the current status: most recent event transitioning
		// into it, else creation, else now.
		var entered time.Time
		found := false
		evs := byIssue[issue.Key]
		for i := len(evs) - 1; i >= 0; i-- {
			if strings.EqualFold(evs[i].ToStatus, current) {
				if ts, ok := tracker.ParseTime(evs[i].ChangedAt); ok {
					entered, found = ts, true
				}
				break
			}
		}
		if !found {
			if ts, ok := tracker.ParseTime(issue.Created); ok {
				entered = ts
			} else {
				entered = now
			}
		}

		days := int(now.Sub(entered).Hours() / 24)
		bucket, ok := rules.AgingBucket(days)
		if !ok {
			continue
		}
		rows = append(rows, agingRow{issue.Key, current, issue.Assignee, issue.TeamField, days, bucket})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].days != rows[j].days {
			return rows[i].days > rows[j].days
		}
		return rows[i].key < rows[j].key
	})

	t := Table{Name: "aging_wip", Header: []string{"issue_key", "current_status", "assignee", "team", "days_in_status", "bucket"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.key, r.status, r.assignee, r.team, r.days, r.bucket})
	}
	return t
}

func reopenTable(events []movement.Event, throughput map[string]int, rules tracker.Rules) Table {
	reopens := weeklyCount(events, func(e movement.Event) bool {
		return rules.Done.Has(e.FromStatus) && !rules.Done.Has(e.ToStatus)
	})

	weekSet := make(map[string]struct{}, len(throughput)+len(reopens))
	for w := range throughput {
		weekSet[w] = struct{}{}
	}
	for w := range reopens {
		weekSet[w] = struct{}{}
	}
	weeks := make([]string, 0, len(weekSet))
	for w := range weekSet {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	t := Table{Name: "reopen_rate", Header: []string{"week", "tickets_done", "reopens", "reopen_rate_pct"}}
	for _, week := range weeks {
		done := throughput[week]
		r := reopens[week]
		// A week with zero throughput reports an empty rate, not 0%.
		var rate any = ""
		if done > 0 {
			rate = round1(float64(r) / float64(done) * 100)
		}
		t.Rows = append(t.Rows, []any{week, done, r, rate})
	}
	return t
}

func timeInStatusTable(byIssue map[string][]movement.Event, now time.Time) Table {
	statusHours := make(map[string][]float64)

	for _, evs := range byIssue {
		for i, e := range evs {
			enter, ok := tracker.ParseTime(e.ChangedAt)
			if !ok {
				continue
			}
			var leave time.Time
			if i+1 < len(evs) {
				next, ok := tracker.ParseTime(evs[i+1].ChangedAt)
				if !ok {
					continue
				}
				leave = next
			} else {
				leave = now
			}
			if !leave.After(enter) {
				continue
			}
			statusHours[e.ToStatus] = append(statusHours[e.ToStatus], leave.Sub(enter).Hours())
		}
	}

	t := Table{Name: "time_in_status", Header: []string{"status", "count", "avg_hours", "p50_hours", "p90_hours"}}
	for _, status := range sortedKeys(statusHours) {
		hours := statusHours[status]
		t.Rows = append(t.Rows, []any{
			status,
			len(hours),
			meanCell(hours),
			Percentile(hours, 50),
			Percentile(hours, 90),
		})
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
