package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasys/pyserini/internal/output"
	"github.com/prasys/pyserini/internal/search"
)

// fakeBackend produces deterministic hits derived from the query text and
// records call granularity.
type fakeBackend struct {
	searchCalls int
	batchCalls  int
	batchSizes  []int
	queriesRun  int

	// failAfter aborts the failAfter+1-th query with failErr.
	failAfter int
	failErr   error

	// omitID drops one id from the batch result map.
	omitID string
}

func (f *fakeBackend) hitsFor(query string, k int) []search.Hit {
	hits := []search.Hit{
		{DocID: query + "-d1", Score: 3.5},
		{DocID: query + "-d2", Score: 2.25},
		{DocID: query + "-d3", Score: 1.125},
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (f *fakeBackend) Search(_ context.Context, query string, k, _ int) ([]search.Hit, error) {
	f.searchCalls++
	if f.failErr != nil && f.queriesRun >= f.failAfter {
		return nil, f.failErr
	}
	f.queriesRun++
	return f.hitsFor(query, k), nil
}

func (f *fakeBackend) BatchSearch(_ context.Context, queries, ids []string, k, _, _ int) (map[string][]search.Hit, error) {
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(queries))
	if len(queries) != len(ids) {
		return nil, search.ErrQueryIDMismatch
	}
	results := make(map[string][]search.Hit, len(ids))
	for i, id := range ids {
		if f.failErr != nil && f.queriesRun >= f.failAfter {
			return nil, f.failErr
		}
		f.queriesRun++
		if id == f.omitID {
			continue
		}
		results[id] = f.hitsFor(queries[i], k)
	}
	return results, nil
}

func (f *fakeBackend) Close() error { return nil }

// recordSink captures dispatch order and payloads.
type recordSink struct {
	ids  []string
	hits [][]search.Hit
	err  error
}

func (s *recordSink) Write(topicID string, hits []search.Hit) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, topicID)
	s.hits = append(s.hits, hits)
	return nil
}

func makeTopics(n int) []Topic {
	ts := make([]Topic, n)
	for i := range ts {
		ts[i] = Topic{ID: fmt.Sprintf("t%03d", i), Text: fmt.Sprintf("query %d", i)}
	}
	return ts
}

func topicIDs(ts []Topic) []string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return ids
}

func TestRun_DispatchCounts(t *testing.T) {
	const n = 7
	ts := makeTopics(n)

	for _, batchSize := range []int{1, 2, n, n + 1} {
		t.Run(fmt.Sprintf("BatchSize%d", batchSize), func(t *testing.T) {
			backend := &fakeBackend{}
			sink := &recordSink{}

			cfg := Config{Hits: 10, Rho: 1000, BatchSize: batchSize, Threads: 2}
			err := Run(context.Background(), ts, cfg, backend, sink, nil)
			require.NoError(t, err)

			assert.Len(t, sink.ids, n)
			assert.Equal(t, topicIDs(ts), sink.ids)
		})
	}
}

func TestRun_SingleMode(t *testing.T) {
	ts := makeTopics(4)
	backend := &fakeBackend{}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 1, Threads: 1}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, backend.searchCalls)
	assert.Zero(t, backend.batchCalls)
	assert.Equal(t, topicIDs(ts), sink.ids)
}

func TestRun_FinalPartialBatch(t *testing.T) {
	// N=5, b=3 must execute batches of [3, 2]; the tail is never dropped.
	ts := makeTopics(5)
	backend := &fakeBackend{}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 3, Threads: 2}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2}, backend.batchSizes)
	assert.Equal(t, topicIDs(ts), sink.ids)
}

func TestRun_BatchModeWithSingleBatchSizeButThreads(t *testing.T) {
	// threads > 1 alone selects batch mode, with one-topic batches.
	ts := makeTopics(3)
	backend := &fakeBackend{}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 1, Threads: 4}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.NoError(t, err)

	assert.Zero(t, backend.searchCalls)
	assert.Equal(t, []int{1, 1, 1}, backend.batchSizes)
	assert.Equal(t, topicIDs(ts), sink.ids)
}

func TestRun_OrderPreservedAcrossBatches(t *testing.T) {
	// Map iteration order is randomized in Go; over enough topics a run
	// that trusted it would scramble output.
	ts := makeTopics(50)
	backend := &fakeBackend{}
	sink := &recordSink{}

	cfg := Config{Hits: 5, Rho: 1000, BatchSize: 7, Threads: 3}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, topicIDs(ts), sink.ids)
	for i, hits := range sink.hits {
		require.NotEmpty(t, hits)
		assert.Equal(t, ts[i].Text+"-d1", hits[0].DocID)
	}
}

func TestRun_SingleAndBatchProduceIdenticalRunFiles(t *testing.T) {
	ts := makeTopics(11)
	dir := t.TempDir()

	runFile := func(name string, cfg Config) string {
		path := filepath.Join(dir, name)
		w, err := output.New(path, output.FormatTREC, "tag", cfg.Hits)
		require.NoError(t, err)
		require.NoError(t, Run(context.Background(), ts, cfg, &fakeBackend{}, w, nil))
		require.NoError(t, w.Close())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}

	single := runFile("single.txt", Config{Hits: 3, Rho: 1000, BatchSize: 1, Threads: 1})
	batched := runFile("batched.txt", Config{Hits: 3, Rho: 1000, BatchSize: 5, Threads: 4})

	assert.NotEmpty(t, single)
	assert.Equal(t, single, batched)
}

func TestRun_EmptyTopicSet(t *testing.T) {
	backend := &fakeBackend{}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 3, Threads: 2}
	err := Run(context.Background(), nil, cfg, backend, sink, nil)
	require.NoError(t, err)

	assert.Empty(t, sink.ids)
	assert.Zero(t, backend.batchCalls)
	assert.Zero(t, backend.searchCalls)
}

func TestRun_BackendErrorAbortsRun(t *testing.T) {
	// Failure on the 2nd of 5 single-mode queries: exactly 1 dispatch.
	ts := makeTopics(5)
	backendErr := errors.New("index corrupted")
	backend := &fakeBackend{failAfter: 1, failErr: backendErr}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 1, Threads: 1}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, backendErr)

	assert.Equal(t, []string{"t000"}, sink.ids)
	assert.Equal(t, 2, backend.searchCalls)
}

func TestRun_BatchErrorAbortsRun(t *testing.T) {
	ts := makeTopics(6)
	backendErr := errors.New("engine gone")
	backend := &fakeBackend{failAfter: 4, failErr: backendErr}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 3, Threads: 2}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, backendErr)

	// First batch of 3 dispatched, second batch failed wholesale.
	assert.Equal(t, []string{"t000", "t001", "t002"}, sink.ids)
}

func TestRun_MissingBatchResultID(t *testing.T) {
	ts := makeTopics(4)
	backend := &fakeBackend{omitID: "t002"}
	sink := &recordSink{}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 4, Threads: 2}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.ErrorIs(t, err, ErrMissingBatchResult)
	assert.Empty(t, sink.ids)
}

func TestRun_SinkErrorAbortsRun(t *testing.T) {
	ts := makeTopics(3)
	sinkErr := errors.New("disk full")
	backend := &fakeBackend{}
	sink := &recordSink{err: sinkErr}

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 1, Threads: 1}
	err := Run(context.Background(), ts, cfg, backend, sink, nil)
	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, 1, backend.searchCalls)
}

func TestRun_ObserverTicksPerTopic(t *testing.T) {
	ts := makeTopics(5)
	var ticks []int

	cfg := Config{Hits: 10, Rho: 1000, BatchSize: 3, Threads: 2}
	err := Run(context.Background(), ts, cfg, &fakeBackend{}, &recordSink{}, func(consumed, total int) {
		assert.Equal(t, 5, total)
		ticks = append(ticks, consumed)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ticks)
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"ZeroBatchSize", Config{Hits: 10, Rho: 1, BatchSize: 0, Threads: 1}, ErrInvalidBatchSize},
		{"ZeroThreads", Config{Hits: 10, Rho: 1, BatchSize: 1, Threads: 0}, ErrInvalidThreads},
		{"NegativeHits", Config{Hits: -1, Rho: 1, BatchSize: 1, Threads: 1}, ErrInvalidHits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(context.Background(), makeTopics(1), tt.cfg, &fakeBackend{}, &recordSink{}, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReproject(t *testing.T) {
	hits := func(doc string) []search.Hit { return []search.Hit{{DocID: doc, Score: 1}} }

	t.Run("InsertionOrder", func(t *testing.T) {
		ids := []string{"b", "a", "c"}
		results := map[string][]search.Hit{
			"a": hits("da"),
			"b": hits("db"),
			"c": hits("dc"),
		}
		ordered, err := reproject(ids, results)
		require.NoError(t, err)
		require.Len(t, ordered, 3)
		assert.Equal(t, "db", ordered[0][0].DocID)
		assert.Equal(t, "da", ordered[1][0].DocID)
		assert.Equal(t, "dc", ordered[2][0].DocID)
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := reproject([]string{"a", "b"}, map[string][]search.Hit{"a": hits("da")})
		assert.ErrorIs(t, err, ErrMissingBatchResult)
	})

	t.Run("EmptyHitsPreserved", func(t *testing.T) {
		ordered, err := reproject([]string{"a"}, map[string][]search.Hit{"a": nil})
		require.NoError(t, err)
		assert.Empty(t, ordered[0])
	})
}
