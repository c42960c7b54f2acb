// Package tracker holds the canonical records the pipeline derives from the
// issue tracker: issue snapshots, raw change history, and the status rules
// that classify lifecycle states.
package tracker

// Issue is an immutable-per-fetch snapshot of one work item. Timestamps are
// carried as the raw strings the source emitted; they participate in content
// hashes unparsed, so nothing may normalize them on the way in.
type Issue struct {
	Key        string `json:"key"`
	Project    string `json:"project"`
	IssueType  string `json:"issue_type"`
	Priority   string `json:"priority"`
	Summary    string `json:"summary"`
	Status     string `json:"status"`
	Assignee   string `json:"assignee"`
	Reporter   string `json:"reporter"`
	Created    string `json:"created"`
	Resolved   string `json:"resolved"`
	Labels     string `json:"labels"`
	Components string `json:"components"`
	TeamField  string `json:"team_field"`
}

// ChangeItem is one field mutation inside a change entry. Only items with
// Field == "status" drive the event log; the rest are kept for the raw
// changelog export.
type ChangeItem struct {
	Field      string `json:"field"`
	FromString string `json:"from_string"`
	ToString   string `json:"to_string"`
}

// ChangeEntry is one authorship event on an issue: who changed what, when.
type ChangeEntry struct {
	ID      string       `json:"id"`
	Author  string       `json:"author"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// StatusItems returns the entry's items whose field is "status".
func (e ChangeEntry) StatusItems() []ChangeItem {
	var items []ChangeItem
	for _, it := range e.Items {
		if it.Field == "status" {
			items = append(items, it)
		}
	}
	return items
}
