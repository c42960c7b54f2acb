package tracker

import "strings"

// DefaultRecognizedStatuses is the ordered accounting workflow the span
// matrix reports on. The order doubles as the matrix column order and as
// the tie-break order for the top-stuck column.
var DefaultRecognizedStatuses = []string{
	"CUSTOMER SUBMITTED",
	"PENDING INITIAL REVIEW",
	"REVIEWING",
	"FURTHER INFO REQUESTED",
	"PREPARING WP",
	"PENDING WP REVIEW",
	"REVIEWING WP",
	"PREPARING ACCOUNTS",
	"PENDING AC REVIEW",
	"ACCOUNTS READY",
	"SUBMITTED FOR SIGNATURE",
	"ACCOUNTS SIGNED",
	"ACCOUNTS FILED",
	"CT600 FILED",
	"DONE",
}

// StatusSet is a case-insensitive membership set of status names.
type StatusSet map[string]struct{}

// NewStatusSet builds a set from names, lower-casing each.
func NewStatusSet(names ...string) StatusSet {
	s := make(StatusSet, len(names))
	for _, n := range names {
		s[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set, ignoring case.
func (s StatusSet) Has(name string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// AgingTier is one stuck-threshold bucket, e.g. 7 days labelled ">7d".
type AgingTier struct {
	Days  int
	Label string
}

// Rules classifies lifecycle states for the aggregators. Build one from
// configuration; the zero value recognizes nothing.
type Rules struct {
	InProgress StatusSet
	Done       StatusSet
	// Milestone is the single status whose weekly entry count gets its own
	// table (and dashboard KPI).
	Milestone string
	// Recognized is the canonical ordered enumeration used by the span
	// reconstructor; names are matched upper-cased.
	Recognized []string
	// AgingExcludeSubstrings removes statuses from the aging table when the
	// lower-cased status name contains any of them (external-wait states).
	AgingExcludeSubstrings []string
	// AgingTiers must be ascending by Days; an open issue is bucketed into
	// the largest tier it qualifies for and omitted below the smallest.
	AgingTiers []AgingTier
}

// RecognizedSet returns the upper-cased membership set for Recognized.
func (r Rules) RecognizedSet() map[string]bool {
	set := make(map[string]bool, len(r.Recognized))
	for _, s := range r.Recognized {
		set[strings.ToUpper(s)] = true
	}
	return set
}

// IsMilestone reports whether status names the milestone state.
func (r Rules) IsMilestone(status string) bool {
	return r.Milestone != "" && strings.EqualFold(strings.TrimSpace(status), r.Milestone)
}

// AgingExcluded reports whether an open issue's status is exempt from aging.
func (r Rules) AgingExcluded(status string) bool {
	lower := strings.ToLower(status)
	for _, sub := range r.AgingExcludeSubstrings {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// AgingBucket returns the label of the largest tier days qualifies for,
// or ok=false when days is below every tier.
func (r Rules) AgingBucket(days int) (string, bool) {
	for i := len(r.AgingTiers) - 1; i >= 0; i-- {
		if days >= r.AgingTiers[i].Days {
			return r.AgingTiers[i].Label, true
		}
	}
	return "", false
}
