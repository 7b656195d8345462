package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSearcher tracks peak concurrency across Search calls.
type countingSearcher struct {
	mu     sync.Mutex
	active int32
	peak   int32
	failOn string
}

func (s *countingSearcher) Search(_ context.Context, query string, k, _ int) ([]Hit, error) {
	cur := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)

	s.mu.Lock()
	if cur > s.peak {
		s.peak = cur
	}
	s.mu.Unlock()

	if s.failOn != "" && query == s.failOn {
		return nil, errors.New("query rejected")
	}

	hits := []Hit{{DocID: query + "-top", Score: 2}, {DocID: query + "-next", Score: 1}}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func TestFanout(t *testing.T) {
	t.Run("OneEntryPerID", func(t *testing.T) {
		s := &countingSearcher{}
		queries := []string{"alpha", "beta", "gamma"}
		ids := []string{"1", "2", "3"}

		results, err := Fanout(context.Background(), s, queries, ids, 10, 100, 2)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, id := range ids {
			require.Contains(t, results, id)
			assert.Equal(t, queries[i]+"-top", results[id][0].DocID)
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := Fanout(context.Background(), &countingSearcher{}, []string{"a"}, []string{"1", "2"}, 10, 100, 1)
		assert.ErrorIs(t, err, ErrQueryIDMismatch)
	})

	t.Run("ErrorFailsWholeBatch", func(t *testing.T) {
		s := &countingSearcher{failOn: "bad"}
		_, err := Fanout(context.Background(), s, []string{"ok", "bad", "fine"}, []string{"1", "2", "3"}, 10, 100, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query rejected")
	})

	t.Run("RespectsThreadLimit", func(t *testing.T) {
		s := &countingSearcher{}
		queries := make([]string, 16)
		ids := make([]string, 16)
		for i := range queries {
			queries[i] = "q"
			ids[i] = string(rune('a' + i))
		}

		_, err := Fanout(context.Background(), s, queries, ids, 5, 100, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, s.peak, int32(2))
	})

	t.Run("ZeroThreadsClampedToOne", func(t *testing.T) {
		s := &countingSearcher{}
		results, err := Fanout(context.Background(), s, []string{"a"}, []string{"1"}, 10, 100, 0)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		results, err := Fanout(context.Background(), &countingSearcher{}, nil, nil, 10, 100, 4)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
