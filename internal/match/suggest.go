package match

import "sort"

// DefaultMinScore is the minimum similarity for a name to be suggested.
const DefaultMinScore = 0.6

// Suggestion is a known name scored against a requested one.
type Suggestion struct {
	Name  string
	Score float64
}

// Suggest returns up to limit known names whose similarity to name is at
// least DefaultMinScore, best first. Ties are ordered by name.
func Suggest(name string, known []string, limit int) []string {
	var ranked []Suggestion

	for _, k := range known {
		if k == name {
			continue
		}

		if s := Similarity(name, k); s >= DefaultMinScore {
			ranked = append(ranked, Suggestion{Name: k, Score: s})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}

		return ranked[i].Name < ranked[j].Name
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Name
	}

	return out
}
