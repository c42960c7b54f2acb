package tracker

import (
	"fmt"
	"strings"
	"time"
)

// timeLayouts covers the shapes Jira emits plus the bare forms that show up
// in cache rebuilds: RFC3339 with or without sub-seconds, the legacy
// "+0000" offset, and naive timestamps assumed UTC.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a source timestamp string. The ok result is false when
// the value is empty or matches no known layout; callers skip the data
// point rather than fail the run.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}

// dueLayouts are the manual-entry formats accepted for the accounting due
// date carried in the team field.
var dueLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2 Jan 2006",
	"January 2, 2006",
	"2006-01-02T15:04:05-0700",
}

// ParseDueDate parses a human-entered due date, falling back to the
// standard timestamp layouts.
func ParseDueDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.UTC(), true
	}
	return ParseTime(s)
}

// WeekLabel formats t as an ISO week label, e.g. "2024-W01".
func WeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
