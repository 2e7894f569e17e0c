package library

import "strings"

// Filter returns the names containing term, case-insensitively, in their
// original order. An empty term matches everything. names is never modified.
func Filter(names []string, term string) []string {
	out := make([]string, 0, len(names))
	if term == "" {
		return append(out, names...)
	}
	needle := strings.ToLower(term)
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), needle) {
			out = append(out, n)
		}
	}
	return out
}
