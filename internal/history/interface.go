// Package history turns the persisted keyword history into search-box
// suggestions.
package history

import (
	"time"

	"github.com/pders01/moji/internal/storage"
)

// Suggestion is a previously searched keyword.
type Suggestion struct {
	Keyword      string
	Count        int
	LastSearched time.Time
	Score        float64
}

// Suggester ranks history entries against what the user has typed so far.
type Suggester interface {
	Suggest(prefix string, limit int) ([]Suggestion, error)
}

// UpdateListener can be implemented by suggesters that maintain their own
// index and want to hear about history changes.
type UpdateListener interface {
	OnRecorded(entry *storage.SearchEntry)
	OnForgotten(keyword string)
	OnCleared()
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}
