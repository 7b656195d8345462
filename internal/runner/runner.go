// Package runner drives end-to-end execution of a topic set against a search
// backend. It owns the batching decision: below the batching threshold each
// topic is searched and written immediately; otherwise topics accumulate into
// fixed-size groups that execute as one backend call, with results re-ordered
// back into arrival order before they reach the sink.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/prasys/pyserini/internal/logging"
	"github.com/prasys/pyserini/internal/search"
)

// Common run errors.
var (
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
	ErrInvalidThreads   = errors.New("threads must be at least 1")
	ErrInvalidHits      = errors.New("hits must be non-negative")

	// ErrMissingBatchResult is returned when a batch call's result map
	// does not cover every id in the batch.
	ErrMissingBatchResult = errors.New("batch result is missing a topic id")
)

// Config is the immutable run configuration. It is read-only for the
// duration of the run.
type Config struct {
	// Hits is the maximum number of hits returned per topic.
	Hits int

	// Rho bounds backend-internal work per query (postings processed for
	// impact-ordered engines). Not a wall-clock timeout.
	Rho int

	// BatchSize is the number of topics per backend batch call. 1 disables
	// batching.
	BatchSize int

	// Threads is the backend-side worker count for batch calls. 1 disables
	// backend concurrency.
	Threads int
}

// validate checks the run preconditions.
func (c Config) validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidBatchSize, c.BatchSize)
	}
	if c.Threads < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidThreads, c.Threads)
	}
	if c.Hits < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidHits, c.Hits)
	}
	return nil
}

// single reports whether the run executes one query per backend call.
func (c Config) single() bool {
	return c.BatchSize <= 1 && c.Threads <= 1
}

// Sink receives one ranked result list per topic, in topic arrival order.
// The runner never calls Write concurrently.
type Sink interface {
	Write(topicID string, hits []search.Hit) error
}

// Topic is one query unit consumed by the runner.
type Topic struct {
	ID   string
	Text string
}

// Observer is notified once per topic consumed from the source, regardless
// of when backend calls fire.
type Observer func(consumed, total int)

// Run executes every topic exactly once and dispatches results to sink in
// topic order. Any backend or sink failure aborts the whole run; there is no
// per-topic retry or skip. Results already dispatched before a failure stay
// with the sink.
func Run(ctx context.Context, ts []Topic, cfg Config, backend search.Searcher, sink Sink, observe Observer) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if observe == nil {
		observe = func(int, int) {}
	}

	log := logging.FromContext(ctx)
	total := len(ts)
	single := cfg.single()
	log.Debug().
		Int("topics", total).
		Int("batch_size", cfg.BatchSize).
		Int("threads", cfg.Threads).
		Bool("single_mode", single).
		Msg("run started")

	// The accumulator is owned by this goroutine for the whole run and
	// reused across batches.
	batchIDs := make([]string, 0, cfg.BatchSize)
	batchQueries := make([]string, 0, cfg.BatchSize)

	flush := func() error {
		results, err := backend.BatchSearch(ctx, batchQueries, batchIDs, cfg.Hits, cfg.Rho, cfg.Threads)
		if err != nil {
			return fmt.Errorf("batch of %d topics failed: %w", len(batchIDs), err)
		}
		ordered, err := reproject(batchIDs, results)
		if err != nil {
			return err
		}
		for i, id := range batchIDs {
			if err := sink.Write(id, ordered[i]); err != nil {
				return fmt.Errorf("writing results for topic %s: %w", id, err)
			}
		}
		log.Debug().Int("topics", len(batchIDs)).Msg("batch dispatched")
		batchIDs = batchIDs[:0]
		batchQueries = batchQueries[:0]
		return nil
	}

	for i, t := range ts {
		if single {
			hits, err := backend.Search(ctx, t.Text, cfg.Hits, cfg.Rho)
			if err != nil {
				return fmt.Errorf("topic %s failed: %w", t.ID, err)
			}
			if err := sink.Write(t.ID, hits); err != nil {
				return fmt.Errorf("writing results for topic %s: %w", t.ID, err)
			}
		} else {
			batchIDs = append(batchIDs, t.ID)
			batchQueries = append(batchQueries, t.Text)
			// Flush on a full accumulator or at end of stream, so a
			// final partial batch is never dropped.
			if len(batchIDs) == cfg.BatchSize || i == total-1 {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		observe(i+1, total)
	}

	log.Debug().Int("topics", total).Msg("run completed")
	return nil
}

// reproject orders an unordered batch-result map by the batch's insertion
// order. Map iteration order is never trusted for output.
func reproject(ids []string, results map[string][]search.Hit) ([][]search.Hit, error) {
	ordered := make([][]search.Hit, len(ids))
	for i, id := range ids {
		hits, ok := results[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingBatchResult, id)
		}
		ordered[i] = hits
	}
	return ordered, nil
}
