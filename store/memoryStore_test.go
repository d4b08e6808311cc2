package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	runDocumentStoreContract(t, NewMemoryStore())
}

// runDocumentStoreContract exercises behavior every DocumentStore shares.
func runDocumentStoreContract(t *testing.T, s DocumentStore) {
	ctx := context.Background()
	const coll = "contract_docs"

	require.NoError(t, s.ReplaceAll(ctx, coll, nil))

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, coll, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put and update versions", func(t *testing.T) {
		e, err := s.Put(ctx, coll, "a", Document{"country": "Mexico", "completed": false})
		require.NoError(t, err)
		assert.Equal(t, int64(1), e.Version)

		e, err = s.Update(ctx, coll, "a", Document{"completed": true}, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), e.Version)
		assert.Equal(t, true, e.Doc["completed"])
		assert.Equal(t, "Mexico", e.Doc["country"])

		_, err = s.Update(ctx, coll, "a", Document{"completed": false}, 1)
		require.ErrorIs(t, err, ErrVersionConflict)

		got, err := s.Get(ctx, coll, "a")
		require.NoError(t, err)
		assert.Equal(t, true, got.Doc["completed"])
	})

	t.Run("update missing", func(t *testing.T) {
		_, err := s.Update(ctx, coll, "missing", Document{"x": 1}, 0)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters case-insensitively", func(t *testing.T) {
		require.NoError(t, s.ReplaceAll(ctx, coll, []Entry{
			{ID: "1", Doc: Document{"country": "Mexico", "stream": "AP"}},
			{ID: "2", Doc: Document{"country": "Canada", "stream": "AR"}},
			{ID: "3", Doc: Document{"country": "Brazil"}},
		}))

		all, err := s.List(ctx, coll, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"1", "2", "3"}, ids(all))

		in, err := s.List(ctx, coll, Filter{}.In("country", "mexico", "CANADA"))
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, ids(in))

		notIn, err := s.List(ctx, coll, Filter{}.NotIn("country", "Mexico"))
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, ids(notIn))

		// missing field counts as not in the set
		noStream, err := s.List(ctx, coll, Filter{}.NotIn("stream", "ap"))
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, ids(noStream))

		none, err := s.List(ctx, coll, Filter{}.In("country"))
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = s.List(ctx, coll, Filter{}.In("bad field", "x"))
		require.Error(t, err)
	})

	t.Run("replace all swaps the set", func(t *testing.T) {
		require.NoError(t, s.ReplaceAll(ctx, coll, []Entry{{ID: "z", Doc: Document{"n": 1}}}))
		all, err := s.List(ctx, coll, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"z"}, ids(all))
		assert.Equal(t, float64(1), all[0].Doc["n"])
	})

	t.Run("sublists keep insertion order", func(t *testing.T) {
		var last time.Time
		for _, text := range []string{"first", "second", "third"} {
			at, err := s.AppendToSublist(ctx, coll, "z", "comments", Document{"text": text})
			require.NoError(t, err)
			assert.False(t, at.Before(last))
			last = at
		}
		entries, err := s.Sublist(ctx, coll, "z", "comments")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "first", entries[0].Doc["text"])
		assert.Equal(t, "third", entries[2].Doc["text"])

		_, err = s.AppendToSublist(ctx, coll, "ghost", "comments", Document{"text": "x"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, coll, "z"))
		require.ErrorIs(t, s.Delete(ctx, coll, "z"), ErrNotFound)
	})

	t.Run("config round trip", func(t *testing.T) {
		_, ok, err := s.GetConfig(ctx, "contract_missing")
		require.NoError(t, err)
		assert.False(t, ok)

		type policy struct {
			Offset int `json:"workingDayOffset"`
		}
		require.NoError(t, SaveConfig(ctx, s, "contract_policy", policy{Offset: 5}))
		var p policy
		found, err := LoadConfig(ctx, s, "contract_policy", &p)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 5, p.Offset)

		require.Error(t, s.SetConfig(ctx, "contract_policy", json.RawMessage("{not json")))
	})
}

func TestMemoryStore_ConcurrentAppendsAllLand(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Put(ctx, "records", "r1", Document{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendToSublist(ctx, "records", "r1", "comments", Document{"i": i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := s.Sublist(ctx, "records", "r1", "comments")
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].PostedAt.After(entries[i-1].PostedAt))
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestMemoryStore_ReturnedDocsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	e, err := s.Put(ctx, "c", "1", Document{"a": "x"})
	require.NoError(t, err)
	e.Doc["a"] = "mutated"

	got, err := s.Get(ctx, "c", "1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Doc["a"])
}

func TestUnavailableErrorUnwraps(t *testing.T) {
	base := errors.New("connection refused")
	err := unavailable("get", base)
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "get", ue.Op)
	assert.ErrorIs(t, err, base)
	assert.Nil(t, unavailable("get", nil))
}

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlobStore("https://files.test")
	_, err := b.Put(ctx, "attachments/r1/a.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	_, err = b.Put(ctx, "attachments/r2/b.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)

	hs, err := b.List(ctx, "attachments/r1/")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, int64(4), hs[0].Size)

	url, err := b.SignedURL(ctx, hs[0], time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "https://files.test/attachments/r1/a.pdf?expires=")

	_, err = b.SignedURL(ctx, Handle{Path: "missing"}, time.Minute)
	require.ErrorIs(t, err, ErrNotFound)
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
