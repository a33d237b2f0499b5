package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/noah-isme/clonebot/internal/models"
)

// Score weights.
const (
	exactMatchScore   = 100.0
	commonWordScore   = 20.0
	partialCharWeight = 5.0
)

// DefaultSearchLimit is the number of results returned when no limit is configured.
const DefaultSearchLimit = 5

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Score rates how well filename matches query. It is pure and never negative.
//
// An exact case-insensitive match short-circuits to 100. Otherwise every word shared by
// both sides adds 20, and every query/filename word pair where one contains the other adds
// 5 per distinct character the two words have in common.
func Score(query, filename string) float64 {
	q := normalize(query)
	f := normalize(filename)
	if q == "" || f == "" {
		return 0
	}
	if q == f {
		return exactMatchScore
	}

	queryWords := wordSet(q)
	fileWords := wordSet(f)

	var score float64
	for word := range queryWords {
		if _, ok := fileWords[word]; ok {
			score += commonWordScore
		}
	}
	for qw := range queryWords {
		for fw := range fileWords {
			if strings.Contains(qw, fw) || strings.Contains(fw, qw) {
				score += partialCharWeight * float64(sharedChars(qw, fw))
			}
		}
	}
	return score
}

// Rank scores every file, drops zero scores, orders by descending score keeping corpus order
// for ties, and truncates to limit. A non-positive limit yields no results.
func Rank(query string, files []models.FileRecord, limit int) []models.SearchResult {
	if limit <= 0 {
		return []models.SearchResult{}
	}

	results := make([]models.SearchResult, 0, len(files))
	for _, file := range files {
		if score := Score(query, file.Filename); score > 0 {
			results = append(results, models.SearchResult{File: file, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range nonWord.Split(s, -1) {
		if word != "" {
			set[word] = struct{}{}
		}
	}
	return set
}

func sharedChars(a, b string) int {
	seen := make(map[rune]struct{}, len(a))
	for _, r := range a {
		seen[r] = struct{}{}
	}
	shared := 0
	for _, r := range b {
		if _, ok := seen[r]; ok {
			shared++
			delete(seen, r)
		}
	}
	return shared
}
