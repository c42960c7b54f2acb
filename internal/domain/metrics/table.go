// Package metrics aggregates movement events and issue snapshots into
// independent named result tables. No table depends on another's output, so
// a data-quality problem in one never poisons the rest.
package metrics

// Table is a generic named result: a header row plus ordered rows of
// heterogeneous scalar cells (string, int, float64). Tables serialize
// independently; an empty table still carries its header.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Matrix returns the header and rows as a single sheet-ready matrix.
func (t Table) Matrix() [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	out = append(out, header)
	out = append(out, t.Rows...)
	return out
}

// Find returns the table with the given name.
func Find(tables []Table, name string) (Table, bool) {
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Names lists table names in order.
func Names(tables []Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}
