package history

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/pders01/moji/internal/storage"
)

// Scanner suggests by scanning the store on every call. It needs no index
// and is used when the bleve index cannot be built.
type Scanner struct {
	store *storage.Store
}

// NewScanner creates a scanning suggester.
func NewScanner(store *storage.Store) *Scanner {
	return &Scanner{store: store}
}

// Suggest scores every history entry against prefix.
func (s *Scanner) Suggest(prefix string, limit int) ([]Suggestion, error) {
	norm := storage.NormalizeKeyword(prefix)
	if norm == "" || limit <= 0 {
		return []Suggestion{}, nil
	}
	terms := tokenize(norm)

	entries, err := s.store.History(0)
	if err != nil {
		return nil, err
	}

	var results []Suggestion
	for _, e := range entries {
		score := scoreKeyword(e.Keyword, norm, terms)
		if score <= 0 {
			continue
		}
		results = append(results, Suggestion{
			Keyword:      e.Keyword,
			Count:        e.Count,
			LastSearched: e.LastSearched,
			Score:        score * (1.0 + math.Log1p(float64(e.Count))/10),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Count > results[j].Count
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scoreKeyword rates how well keyword matches what was typed.
func scoreKeyword(keyword, norm string, terms []string) float64 {
	lower := storage.NormalizeKeyword(keyword)
	if lower == "" {
		return 0
	}

	var score float64
	if strings.HasPrefix(lower, norm) {
		score += 4.0
	} else if strings.Contains(lower, norm) {
		score += 2.0
	}

	words := tokenize(lower)
	matchedTerms := 0
	for _, term := range terms {
		for _, word := range words {
			switch {
			case word == term:
				score += 1.5
				matchedTerms++
			case strings.HasPrefix(word, term):
				score += 1.0
				matchedTerms++
			case strings.Contains(word, term):
				score += 0.5
				matchedTerms++
			}
		}
	}

	// Boost score if multiple terms match
	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}
	if score == 0 {
		return 0
	}
	// Shorter keywords covering the same input rank higher.
	return score * float64(len([]rune(norm))) / float64(len([]rune(lower)))
}

// tokenize breaks text into lower-case letter/number runs.
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			terms = append(terms, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		terms = append(terms, current.String())
	}

	return terms
}
