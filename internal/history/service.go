package history

import (
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/storage"
)

// Service records searches and answers suggestion queries. It is safe for
// concurrent use.
type Service struct {
	store     *storage.Store
	suggester Suggester
}

// NewService wires store to a bleve index, falling back to a Scanner when
// the index cannot be built.
func NewService(store *storage.Store) *Service {
	svc := &Service{store: store}
	idx, err := BuildIndex(store)
	if err != nil {
		debuglog.Warnf("history index unavailable, scanning instead: %v", err)
		svc.suggester = NewScanner(store)
		return svc
	}
	svc.suggester = idx
	return svc
}

// NewServiceWith uses a specific suggester.
func NewServiceWith(store *storage.Store, s Suggester) *Service {
	return &Service{store: store, suggester: s}
}

// Record stores a search and updates the suggester.
func (s *Service) Record(keyword string, results []string) error {
	if err := s.store.RecordSearch(keyword, results); err != nil {
		return err
	}
	if l, ok := s.suggester.(UpdateListener); ok {
		entry, err := s.store.GetSearch(keyword)
		if err != nil {
			return err
		}
		l.OnRecorded(entry)
	}
	return nil
}

// Suggest returns up to limit keywords matching prefix.
func (s *Service) Suggest(prefix string, limit int) ([]Suggestion, error) {
	return s.suggester.Suggest(prefix, limit)
}

// Keywords returns only the keyword strings of Suggest.
func (s *Service) Keywords(prefix string, limit int) []string {
	sugg, err := s.Suggest(prefix, limit)
	if err != nil {
		debuglog.Debugf("suggest %q: %v", prefix, err)
		return nil
	}
	out := make([]string, len(sugg))
	for i, sg := range sugg {
		out[i] = sg.Keyword
	}
	return out
}

// Recent returns the most recently searched entries.
func (s *Service) Recent(limit int) ([]*storage.SearchEntry, error) {
	return s.store.History(limit)
}

// Forget removes keyword from history.
func (s *Service) Forget(keyword string) error {
	if err := s.store.DeleteSearch(keyword); err != nil {
		return err
	}
	if l, ok := s.suggester.(UpdateListener); ok {
		l.OnForgotten(keyword)
	}
	return nil
}

// Clear removes all history.
func (s *Service) Clear() error {
	if err := s.store.ClearHistory(); err != nil {
		return err
	}
	if l, ok := s.suggester.(UpdateListener); ok {
		l.OnCleared()
	}
	return nil
}

// DocCount reports the suggester's document count when it has one.
func (s *Service) DocCount() (int, bool) {
	if d, ok := s.suggester.(DebugStatser); ok {
		if n, err := d.DocCount(); err == nil {
			return n, true
		}
	}
	return 0, false
}
