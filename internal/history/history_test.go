package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/moji/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(storage.MemoryPath, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, svc *Service, searches map[string]int) {
	t.Helper()
	for kw, n := range searches {
		for i := 0; i < n; i++ {
			require.NoError(t, svc.Record(kw, []string{"https://wx1.sinaimg.cn/large/a.jpg"}))
		}
	}
}

func keywords(s []Suggestion) []string {
	out := make([]string, len(s))
	for i, sg := range s {
		out[i] = sg.Keyword
	}
	return out
}

func suggesters(t *testing.T, store *storage.Store) map[string]Suggester {
	idx, err := NewIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return map[string]Suggester{"index": idx, "scanner": NewScanner(store)}
}

func TestSuggestPrefix(t *testing.T) {
	for name, build := range map[string]func(*storage.Store) Suggester{
		"index": func(*storage.Store) Suggester {
			idx, err := NewIndex()
			require.NoError(t, err)
			t.Cleanup(func() { _ = idx.Close() })
			return idx
		},
		"scanner": func(s *storage.Store) Suggester { return NewScanner(s) },
	} {
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t)
			svc := NewServiceWith(store, build(store))
			seed(t, svc, map[string]int{"cat": 3, "catfish": 1, "dog": 2, "black cat": 1, "猫猫": 2})

			got, err := svc.Suggest("ca", 10)
			require.NoError(t, err)
			kws := keywords(got)
			assert.Contains(t, kws, "cat")
			assert.Contains(t, kws, "catfish")
			assert.NotContains(t, kws, "dog")
			assert.Equal(t, "cat", kws[0], "the shortest, most searched match ranks first")

			got, err = svc.Suggest("猫", 5)
			require.NoError(t, err)
			assert.Equal(t, []string{"猫猫"}, keywords(got))
			assert.Equal(t, 2, got[0].Count)

			got, err = svc.Suggest("  ", 5)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestIndexFindsWordsInsideKeywords(t *testing.T) {
	store := newTestStore(t)
	idx, err := NewIndex()
	require.NoError(t, err)
	defer idx.Close()
	svc := NewServiceWith(store, idx)
	seed(t, svc, map[string]int{"black cat": 1, "dog": 1})

	got, err := svc.Suggest("cat", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"black cat"}, keywords(got))
}

func TestIndexToleratesTypos(t *testing.T) {
	store := newTestStore(t)
	idx, err := NewIndex()
	require.NoError(t, err)
	defer idx.Close()
	svc := NewServiceWith(store, idx)
	seed(t, svc, map[string]int{"kitten": 1})

	got, err := svc.Suggest("kiten", 5)
	require.NoError(t, err)
	assert.Contains(t, keywords(got), "kitten")
}

func TestServiceForgetAndClear(t *testing.T) {
	store := newTestStore(t)
	for name, s := range suggesters(t, store) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.ClearHistory())
			svc := NewServiceWith(store, s)
			seed(t, svc, map[string]int{"cat": 1, "cattle": 1})

			require.NoError(t, svc.Forget("CAT"))
			assert.Equal(t, []string{"cattle"}, svc.Keywords("cat", 5))

			require.NoError(t, svc.Clear())
			assert.Empty(t, svc.Keywords("cat", 5))
			recent, err := svc.Recent(0)
			require.NoError(t, err)
			assert.Empty(t, recent)
		})
	}
}

func TestNewServiceRebuildsFromStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordSearch("cat", nil))
	require.NoError(t, store.RecordSearch("dog", nil))

	svc := NewService(store)
	n, ok := svc.DocCount()
	require.True(t, ok, "bleve index reports its size")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"dog"}, svc.Keywords("do", 5))

	require.NoError(t, svc.Record("dolphin", nil))
	n, _ = svc.DocCount()
	assert.Equal(t, 3, n)
}

func TestScannerHasNoDocCount(t *testing.T) {
	store := newTestStore(t)
	svc := NewServiceWith(store, NewScanner(store))
	_, ok := svc.DocCount()
	assert.False(t, ok)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"black", "cat", "2"}, tokenize("Black-Cat 2"))
	assert.Equal(t, []string{"猫猫"}, tokenize("猫猫"))
	assert.Empty(t, tokenize("  --  "))
}
