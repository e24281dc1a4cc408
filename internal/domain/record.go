package domain

import "fmt"

// Record is one tabular row keyed by column name. Values are scalars
// (string, int64, float64, bool or nil).
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Render returns the string form of column col, or "" when it is absent or nil.
func (r Record) Render(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Rows converts records to the flat parameter maps the graph driver expects.
func Rows(records []Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = map[string]any(r)
	}
	return out
}
