// Package storage persists keyword history in a bbolt database. Nothing here
// caches search results or images; those live in memory only.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	searchesBucket = []byte("searches")
	metaBucket     = []byte("metadata")
	metaKey        = []byte("meta")
)

const schemaVersion = 1

// MemoryPath opens a throwaway database that is removed on Close.
const MemoryPath = ":memory:"

// ErrNotFound is returned for unknown keywords.
var ErrNotFound = errors.New("search not found")

type Store struct {
	db      *bolt.DB
	tempDir string
	now     func() time.Time
}

// NewStore opens or creates the database at dbPath. timeout bounds the wait
// for the file lock held by another moji process.
func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	s := &Store{now: time.Now}
	if dbPath == MemoryPath {
		dir, err := os.MkdirTemp("", "moji-history-*")
		if err != nil {
			return nil, fmt.Errorf("creating temp database dir: %w", err)
		}
		s.tempDir = dir
		dbPath = filepath.Join(dir, "history.db")
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		s.removeTemp()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{searchesBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get(metaKey) != nil {
			return nil
		}
		data, err := json.Marshal(metadata{SchemaVersion: schemaVersion, CreatedAt: s.now()})
		if err != nil {
			return err
		}
		return meta.Put(metaKey, data)
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	s.removeTemp()
	return err
}

func (s *Store) removeTemp() {
	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir)
	}
}

// Path is the database file.
func (s *Store) Path() string { return s.db.Path() }

// NormalizeKeyword is the key a keyword is stored under: lower case with
// collapsed whitespace.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// RecordSearch bumps the counter for keyword and stores a sample of results.
func (s *Store) RecordSearch(keyword string, results []string) error {
	key := NormalizeKeyword(keyword)
	if key == "" {
		return fmt.Errorf("recording search: empty keyword")
	}
	now := s.now()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(searchesBucket)
		entry := SearchEntry{Keyword: strings.TrimSpace(keyword), FirstSearched: now}
		if data := b.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("decoding %q: %w", key, err)
			}
		}

		entry.Count++
		entry.Results = len(results)
		entry.LastSearched = now
		n := len(results)
		if n > sampleSize {
			n = sampleSize
		}
		entry.Sample = append([]string(nil), results[:n]...)

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// GetSearch returns the entry for keyword or ErrNotFound.
func (s *Store) GetSearch(keyword string) (*SearchEntry, error) {
	var entry SearchEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(searchesBucket).Get([]byte(NormalizeKeyword(keyword)))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// History returns entries, most recently searched first. A limit of zero or
// less returns everything.
func (s *Store) History(limit int) ([]*SearchEntry, error) {
	var entries []*SearchEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(searchesBucket).ForEach(func(_ []byte, v []byte) error {
			var entry SearchEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSearched.Equal(entries[j].LastSearched) {
			return entries[i].LastSearched.After(entries[j].LastSearched)
		}
		return entries[i].Keyword < entries[j].Keyword
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, err
}

// DeleteSearch removes keyword. Unknown keywords are not an error.
func (s *Store) DeleteSearch(keyword string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(searchesBucket).Delete([]byte(NormalizeKeyword(keyword)))
	})
}

// ClearHistory removes every entry.
func (s *Store) ClearHistory() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(searchesBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(searchesBucket)
		return err
	})
}

// Count is the number of keywords in history.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(searchesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// SchemaVersion reports the stored schema version.
func (s *Store) SchemaVersion() (int, error) {
	var meta metadata
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(metaBucket).Get(metaKey)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &meta)
	})
	return meta.SchemaVersion, err
}
