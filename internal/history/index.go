package history

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/moji/internal/storage"
)

// Index is an in-memory bleve index over keyword history. It is rebuilt
// from the store on start and kept current through UpdateListener.
type Index struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating history index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// BuildIndex indexes every entry in store.
func BuildIndex(store *storage.Store) (*Index, error) {
	x, err := NewIndex()
	if err != nil {
		return nil, err
	}
	entries, err := store.History(0)
	if err != nil {
		_ = x.Close()
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if err := x.AddAll(entries); err != nil {
		_ = x.Close()
		return nil, err
	}
	return x, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true

	// Whole normalised keyword, for prefix matching of CJK input that the
	// standard analyzer splits per rune.
	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	exact.Store = false

	count := bleve.NewNumericFieldMapping()
	count.Store = true

	last := bleve.NewNumericFieldMapping()
	last.Store = true

	dm.AddFieldMappingsAt("keyword", text)
	dm.AddFieldMappingsAt("exact", exact)
	dm.AddFieldMappingsAt("count", count)
	dm.AddFieldMappingsAt("last_searched", last)

	im.DefaultMapping = dm
	return im
}

func docFor(e *storage.SearchEntry) map[string]any {
	return map[string]any{
		"keyword":       e.Keyword,
		"exact":         storage.NormalizeKeyword(e.Keyword),
		"count":         float64(e.Count),
		"last_searched": float64(e.LastSearched.Unix()),
	}
}

func docID(keyword string) string { return "kw:" + storage.NormalizeKeyword(keyword) }

// Add indexes or replaces e.
func (x *Index) Add(e *storage.SearchEntry) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.idx.Index(docID(e.Keyword), docFor(e))
}

// AddAll indexes entries in one batch.
func (x *Index) AddAll(entries []*storage.SearchEntry) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	batch := x.idx.NewBatch()
	for _, e := range entries {
		if err := batch.Index(docID(e.Keyword), docFor(e)); err != nil {
			return err
		}
	}
	return x.idx.Batch(batch)
}

// Remove drops keyword from the index.
func (x *Index) Remove(keyword string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.idx.Delete(docID(keyword))
}

// Suggest ranks keywords that start with, contain a word starting with, or
// are a near miss of prefix.
func (x *Index) Suggest(prefix string, limit int) ([]Suggestion, error) {
	norm := storage.NormalizeKeyword(prefix)
	if norm == "" || limit <= 0 {
		return []Suggestion{}, nil
	}

	qe := bleve.NewPrefixQuery(norm)
	qe.SetField("exact")
	qe.SetBoost(4.0)
	qs := []bleveQuery.Query{qe}

	for _, tok := range tokenize(norm) {
		qm := bleve.NewMatchQuery(tok)
		qm.SetField("keyword")
		qm.SetBoost(2.0)
		qs = append(qs, qm)

		qp := bleve.NewPrefixQuery(tok)
		qp.SetField("keyword")
		qp.SetBoost(1.5)
		qs = append(qs, qp)

		if n := len([]rune(tok)); n >= 4 {
			qf := bleve.NewFuzzyQuery(tok)
			qf.SetField("keyword")
			qf.SetFuzziness(1)
			if n >= 7 {
				qf.SetFuzziness(2)
			}
			qf.SetBoost(0.5)
			qs = append(qs, qf)
		}
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit*4, 0, false)
	req.Fields = []string{"keyword", "count", "last_searched"}
	x.mu.RLock()
	res, err := x.idx.Search(req)
	x.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("searching history: %w", err)
	}

	out := make([]Suggestion, 0, len(res.Hits))
	for _, h := range res.Hits {
		s := Suggestion{Score: h.Score}
		if k, ok := h.Fields["keyword"].(string); ok {
			s.Keyword = k
		} else {
			s.Keyword = strings.TrimPrefix(h.ID, "kw:")
		}
		if c, ok := h.Fields["count"].(float64); ok {
			s.Count = int(c)
		}
		if ts, ok := h.Fields["last_searched"].(float64); ok {
			s.LastSearched = time.Unix(int64(ts), 0)
		}
		s.Score = rerank(h.Score, norm, s.Keyword, s.Count)
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// rerank favours keywords that the input covers more of and that were
// searched more often.
func rerank(score float64, norm, keyword string, count int) float64 {
	n := len([]rune(storage.NormalizeKeyword(keyword)))
	if n == 0 {
		return 0
	}
	return score * float64(len([]rune(norm))) / float64(n) * (1.0 + math.Log1p(float64(count))/10)
}

// DocCount reports total documents in the index.
func (x *Index) DocCount() (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, err := x.idx.DocCount()
	return int(n), err
}

func (x *Index) OnRecorded(e *storage.SearchEntry) { _ = x.Add(e) }

func (x *Index) OnForgotten(keyword string) { _ = x.Remove(keyword) }

// OnCleared swaps in an empty index.
func (x *Index) OnCleared() {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return
	}
	x.mu.Lock()
	old := x.idx
	x.idx = idx
	x.mu.Unlock()
	_ = old.Close()
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.idx.Close()
}
