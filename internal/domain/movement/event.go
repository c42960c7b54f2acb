// Package movement derives the canonical status-transition event log from
// raw change history. Event identity is a content hash, which is what makes
// re-deriving from overlapping fetches safe to merge: the same transition
// always hashes to the same id, so downstream appenders can treat the log
// as append-only.
package movement

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/jiralens/jiralens/internal/domain/tracker"
)

// Event is one observed status transition, denormalized with the issue
// fields as they looked at parse time.
type Event struct {
	EventID         string `json:"event_id"`
	IssueKey        string `json:"issue_key"`
	Project         string `json:"project"`
	IssueType       string `json:"issue_type"`
	Priority        string `json:"priority"`
	Created         string `json:"created"`
	Resolved        string `json:"resolved"`
	FromStatus      string `json:"from_status"`
	ToStatus        string `json:"to_status"`
	ChangedAt       string `json:"changed_at"`
	ChangedBy       string `json:"changed_by"`
	Assignee        string `json:"assignee"`
	Labels          string `json:"labels"`
	Components      string `json:"components"`
	TeamField       string `json:"team_field"`
	CurrentStatus   string `json:"current_status"`
	CurrentAssignee string `json:"current_assignee"`
}

// Columns is the sheet column order for the movement_events tab.
var Columns = []string{
	"event_id",
	"issue_key", "project", "issue_type", "priority",
	"created", "resolved",
	"from_status", "to_status", "changed_at", "changed_by",
	"assignee", "labels", "components", "team_field",
	"current_status", "current_assignee",
}

// EventID computes the deterministic identity of a transition. The raw
// changed_at string participates unparsed: normalizing it would change the
// hash and break idempotence against previously persisted events.
func EventID(issueKey, changedAt, fromStatus, toStatus string) string {
	h := sha256.Sum256([]byte(issueKey + "|" + changedAt + "|" + fromStatus + "|" + toStatus))
	return hex.EncodeToString(h[:])[:16]
}

// Derive produces one Event per status change item. Change history whose
// issue key is missing from the snapshot is dropped (changelog for an issue
// outside the current fetch scope, not an error). Output is sorted by
// (issue_key, changed_at, event_id) so repeated derivation is byte-stable.
func Derive(issues map[string]tracker.Issue, changelogs map[string][]tracker.ChangeEntry) []Event {
	var events []Event
	for issueKey, entries := range changelogs {
		issue, ok := issues[issueKey]
		if !ok {
			continue
		}
		for _, entry := range entries {
			for _, item := range entry.StatusItems() {
				events = append(events, Event{
					EventID:         EventID(issueKey, entry.Created, item.FromString, item.ToString),
					IssueKey:        issueKey,
					Project:         issue.Project,
					IssueType:       issue.IssueType,
					Priority:        issue.Priority,
					Created:         issue.Created,
					Resolved:        issue.Resolved,
					FromStatus:      item.FromString,
					ToStatus:        item.ToString,
					ChangedAt:       entry.Created,
					ChangedBy:       entry.Author,
					Assignee:        issue.Assignee,
					Labels:          issue.Labels,
					Components:      issue.Components,
					TeamField:       issue.TeamField,
					CurrentStatus:   issue.Status,
					CurrentAssignee: issue.Assignee,
				})
			}
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].IssueKey != events[j].IssueKey {
			return events[i].IssueKey < events[j].IssueKey
		}
		if events[i].ChangedAt != events[j].ChangedAt {
			return events[i].ChangedAt < events[j].ChangedAt
		}
		return events[i].EventID < events[j].EventID
	})
	return events
}

// Row converts the event to the Columns order for sheet persistence.
func (e Event) Row() []any {
	return []any{
		e.EventID,
		e.IssueKey, e.Project, e.IssueType, e.Priority,
		e.Created, e.Resolved,
		e.FromStatus, e.ToStatus, e.ChangedAt, e.ChangedBy,
		e.Assignee, e.Labels, e.Components, e.TeamField,
		e.CurrentStatus, e.CurrentAssignee,
	}
}

// Rows converts events to a header-plus-rows matrix for the sink.
func Rows(events []Event) [][]any {
	rows := make([][]any, 0, len(events)+1)
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	rows = append(rows, header)
	for _, e := range events {
		rows = append(rows, e.Row())
	}
	return rows
}

// SortByChangedAt orders events ascending by their raw changed_at string,
// stable on ties. Source timestamps share a fixed-width layout, so the
// lexicographic order matches chronological order.
func SortByChangedAt(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ChangedAt < events[j].ChangedAt
	})
}

// GroupByIssue splits events per issue key, each group sorted by changed_at.
func GroupByIssue(events []Event) map[string][]Event {
	grouped := make(map[string][]Event)
	for _, e := range events {
		grouped[e.IssueKey] = append(grouped[e.IssueKey], e)
	}
	for key := range grouped {
		SortByChangedAt(grouped[key])
	}
	return grouped
}
