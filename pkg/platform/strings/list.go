// Package strings holds list helpers shared by configuration and the CLIs.
package strings

import (
	"strings"
)

// List splits a comma-separated value into trimmed entries, dropping empty
// and repeated ones. Order is preserved.
//
//	List(" a, b,,a ") // []string{"a", "b"}
func List(raw string) []string {
	return Unique(strings.Split(raw, ","))
}

// Unique trims values and drops empty and repeated entries, keeping the
// first occurrence. A nil or empty input yields nil.
func Unique(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
