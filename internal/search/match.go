package search

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// DefaultThreshold is the minimum similarity for a field to count as a match.
const DefaultThreshold = 0.6

// fieldMatch is the best approximate occurrence of a query inside a field.
type fieldMatch struct {
	score float64
	text  string
}

// matchField finds the best approximate occurrence of query in field.
// query must already be lower-cased and trimmed. Exact substring hits score 1.
func matchField(query, field string, threshold float64) (fieldMatch, bool) {
	if query == "" || field == "" {
		return fieldMatch{}, false
	}

	lower := strings.ToLower(field)
	if idx := strings.Index(lower, query); idx >= 0 && len(lower) == len(field) {
		return fieldMatch{score: 1, text: field[idx : idx+len(query)]}, true
	} else if idx >= 0 {
		return fieldMatch{score: 1, text: query}, true
	}

	fieldRunes := []rune(field)
	lowerRunes := []rune(lower)
	if len(fieldRunes) != len(lowerRunes) {
		// Lower-casing changed the rune count; compare against the lower-cased text.
		fieldRunes = lowerRunes
	}
	qlen := utf8.RuneCountInString(query)

	best := fieldMatch{}
	for _, size := range []int{qlen - 1, qlen, qlen + 1} {
		if size < 1 {
			continue
		}
		if size > len(lowerRunes) {
			size = len(lowerRunes)
		}
		for start := 0; start+size <= len(lowerRunes); start++ {
			window := string(lowerRunes[start : start+size])
			sim := levenshtein.Similarity(window, query, nil)
			if sim > best.score {
				best = fieldMatch{score: sim, text: string(fieldRunes[start : start+size])}
			}
		}
	}
	if best.score < threshold {
		return fieldMatch{}, false
	}
	return best, true
}

// matchSegment matches query against each dot-separated segment of a type
// string and reports the best segment.
func matchSegment(query, typeName string, threshold float64) (fieldMatch, bool) {
	var best fieldMatch
	found := false
	for _, seg := range strings.Split(typeName, ".") {
		m, ok := matchField(query, seg, threshold)
		if !ok {
			continue
		}
		if !found || m.score > best.score {
			best = fieldMatch{score: m.score, text: seg}
			found = true
		}
	}
	return best, found
}
