package common

import "strings"

// UnknownStr is returned by String methods for out-of-range enum values.
const UnknownStr = "unknown"

// SplitList splits a separated list, trimming blanks and dropping empty items.
// Any of the runes in seps acts as a separator.
func SplitList(s, seps string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})

	result := make([]string, 0, len(fields))

	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			result = append(result, f)
		}
	}

	return result
}

// Dedupe returns items without repeats, keeping first occurrences in order.
func Dedupe[S ~[]E, E comparable](items S) S {
	seen := make(map[E]struct{}, len(items))
	out := make(S, 0, len(items))

	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}

		seen[it] = struct{}{}
		out = append(out, it)
	}

	return out
}
