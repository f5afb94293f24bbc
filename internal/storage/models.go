package storage

import (
	"time"
)

// sampleSize is how many result URLs are kept per keyword.
const sampleSize = 8

// SearchEntry is the history record for one keyword.
type SearchEntry struct {
	Keyword       string    `json:"keyword"`
	Count         int       `json:"count"`
	Results       int       `json:"results"`
	Sample        []string  `json:"sample"`
	FirstSearched time.Time `json:"first_searched"`
	LastSearched  time.Time `json:"last_searched"`
}

type metadata struct {
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
}
