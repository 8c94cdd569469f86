package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a name and removes all whitespace so it can be compared loosely.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

type SimilarPair struct {
	Left       string
	Right      string
	Similarity float64
}

// SimilarPairs finds pairs of distinct names whose Jaro-Winkler similarity (after
// NormalizeName) is at least threshold. Exact duplicates are not reported.
func SimilarPairs(names []string, threshold float64) []SimilarPair {
	normalized := make([]string, len(names))
	for i, n := range names {
		normalized[i] = NormalizeName(n)
	}

	var result []SimilarPair
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[i] == names[j] {
				continue
			}
			similarity := 1.0
			if normalized[i] != normalized[j] {
				similarity = matchr.JaroWinkler(normalized[i], normalized[j], false)
			}
			if similarity >= threshold {
				result = append(result, SimilarPair{
					Left:       names[i],
					Right:      names[j],
					Similarity: similarity,
				})
			}
		}
	}
	return result
}
