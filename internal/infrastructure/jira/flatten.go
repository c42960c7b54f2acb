package jira

import (
	"encoding/json"
	"strings"

	"github.com/jiralens/jiralens/internal/domain/tracker"
)

// rawIssue is the wire shape of one search hit. Fields stay raw so the
// configured custom team field can be looked up by id.
type rawIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type rawChangeEntry struct {
	ID     string `json:"id"`
	Author struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Created string `json:"created"`
	Items   []struct {
		Field      string `json:"field"`
		FromString string `json:"fromString"`
		ToString   string `json:"toString"`
	} `json:"items"`
}

func (r rawChangeEntry) toChangeEntry() tracker.ChangeEntry {
	entry := tracker.ChangeEntry{
		ID:      r.ID,
		Author:  r.Author.DisplayName,
		Created: r.Created,
	}
	for _, it := range r.Items {
		entry.Items = append(entry.Items, tracker.ChangeItem{
			Field:      it.Field,
			FromString: it.FromString,
			ToString:   it.ToString,
		})
	}
	return entry
}

// FlattenIssue converts a raw search hit into the canonical snapshot.
// teamField selects the grouping value: "component" (first component),
// "label" (first label), or a custom field id whose value may be a plain
// string or an object carrying value/name.
func FlattenIssue(raw rawIssue, teamField string) tracker.Issue {
	labels := stringList(raw.Fields["labels"])
	components := namedList(raw.Fields["components"])

	var team string
	switch teamField {
	case "component":
		if len(components) > 0 {
			team = components[0]
		}
	case "label":
		if len(labels) > 0 {
			team = labels[0]
		}
	default:
		team = unionString(raw.Fields[teamField])
	}

	return tracker.Issue{
		Key:        raw.Key,
		Project:    nestedString(raw.Fields["project"], "key"),
		IssueType:  nestedString(raw.Fields["issuetype"], "name"),
		Priority:   nestedString(raw.Fields["priority"], "name"),
		Summary:    plainString(raw.Fields["summary"]),
		Status:     nestedString(raw.Fields["status"], "name"),
		Assignee:   nestedString(raw.Fields["assignee"], "displayName"),
		Reporter:   nestedString(raw.Fields["reporter"], "displayName"),
		Created:    plainString(raw.Fields["created"]),
		Resolved:   plainString(raw.Fields["resolutiondate"]),
		Labels:     strings.Join(labels, ","),
		Components: strings.Join(components, ","),
		TeamField:  team,
	}
}

func plainString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func nestedString(raw json.RawMessage, field string) string {
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return ""
	}
	return plainString(obj[field])
}

func stringList(raw json.RawMessage) []string {
	var list []string
	if json.Unmarshal(raw, &list) != nil {
		return nil
	}
	return list
}

func namedList(raw json.RawMessage) []string {
	var list []struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &list) != nil {
		return nil
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		names = append(names, item.Name)
	}
	return names
}

// unionString resolves the dynamic custom-field shape once, at flatten
// time: a plain string, or an object whose value/name carries the string.
// Nothing ambiguous travels downstream.
func unionString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if s := plainString(raw); s != "" {
		return s
	}
	if v := nestedString(raw, "value"); v != "" {
		return v
	}
	return nestedString(raw, "name")
}
