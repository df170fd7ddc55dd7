// Package strings provides set-like helpers over string slices used when
// comparing reference lists and classification tags.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SortedSet is DedupeAndTrim followed by a sort, giving one canonical form
// for order-insensitive lists. Empty input yields nil.
func SortedSet(values []string) []string {
	out := DedupeAndTrim(values)
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

// EqualSets reports whether a and b hold the same elements after SortedSet.
func EqualSets(a, b []string) bool {
	return slices.Equal(SortedSet(a), SortedSet(b))
}

// SplitList splits on commas, semicolons and newlines and returns the
// SortedSet of the parts.
func SplitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	return SortedSet(parts)
}
