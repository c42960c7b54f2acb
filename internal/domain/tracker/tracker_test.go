package tracker

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{
			name:  "jira millisecond offset",
			input: "2024-01-03T10:30:00.000+0000",
			want:  time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "jira non-utc offset",
			input: "2024-01-03T10:30:00.000+0200",
			want:  time.Date(2024, 1, 3, 8, 30, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "rfc3339 zulu",
			input: "2024-01-01T00:00:00Z",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "naive assumed utc",
			input: "2024-01-05T08:00:00",
			want:  time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "date only",
			input: "2024-06-01",
			want:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{name: "empty", input: "", ok: false},
		{name: "garbage", input: "not a time", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseTime(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"01/06/2024", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"1 Jun 2024", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"June 1, 2024", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"Alpha Team", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDueDate(tt.input)
		if ok != tt.ok {
			t.Fatalf("ParseDueDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseDueDate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestStatusSet(t *testing.T) {
	s := NewStatusSet("Done", "ACCOUNTS FILED", " ct600 filed ")
	for _, name := range []string{"done", "DONE", "Accounts Filed", "CT600 FILED"} {
		if !s.Has(name) {
			t.Errorf("expected set to contain %q", name)
		}
	}
	if s.Has("Reviewing") {
		t.Errorf("set should not contain Reviewing")
	}
	if s.Has("") {
		t.Errorf("empty status should not match")
	}
}

func TestRulesAgingExcluded(t *testing.T) {
	r := Rules{AgingExcludeSubstrings: []string{"due"}}

	if !r.AgingExcluded("Awaiting Signature (Due 2024-06-01)") {
		t.Errorf("status containing 'due' must be excluded")
	}
	if r.AgingExcluded("Reviewing") {
		t.Errorf("Reviewing should not be excluded")
	}
}

func TestRulesAgingBucket(t *testing.T) {
	r := Rules{AgingTiers: []AgingTier{
		{Days: 7, Label: ">7d"},
		{Days: 14, Label: ">14d"},
		{Days: 30, Label: ">30d"},
	}}

	tests := []struct {
		days  int
		label string
		ok    bool
	}{
		{3, "", false},
		{6, "", false},
		{7, ">7d", true},
		{13, ">7d", true},
		{14, ">14d", true},
		{29, ">14d", true},
		{30, ">30d", true},
		{365, ">30d", true},
	}
	for _, tt := range tests {
		label, ok := r.AgingBucket(tt.days)
		if ok != tt.ok || label != tt.label {
			t.Errorf("AgingBucket(%d) = %q, %v; want %q, %v", tt.days, label, ok, tt.label, tt.ok)
		}
	}
}

func TestRulesIsMilestone(t *testing.T) {
	r := Rules{Milestone: "SUBMITTED FOR SIGNATURE"}
	if !r.IsMilestone("Submitted For Signature") {
		t.Errorf("milestone match should ignore case")
	}
	if r.IsMilestone("DONE") {
		t.Errorf("DONE is not the milestone")
	}
	if (Rules{}).IsMilestone("") {
		t.Errorf("empty milestone must never match")
	}
}

func TestWeekLabel(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC), "2024-W01"},
		{time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), "2025-W01"},
		{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "2022-W52"},
	}
	for _, tt := range tests {
		if got := WeekLabel(tt.t); got != tt.want {
			t.Errorf("WeekLabel(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestChangeEntryStatusItems(t *testing.T) {
	e := ChangeEntry{Items: []ChangeItem{
		{Field: "assignee", FromString: "a", ToString: "b"},
		{Field: "status", FromString: "To Do", ToString: "In Progress"},
		{Field: "status", FromString: "In Progress", ToString: "Done"},
	}}
	items := e.StatusItems()
	if len(items) != 2 {
		t.Fatalf("expected 2 status items, got %d", len(items))
	}
	if items[0].ToString != "In Progress" || items[1].ToString != "Done" {
		t.Errorf("status items out of order: %+v", items)
	}
}
