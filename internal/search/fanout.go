package search

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SingleSearcher is the subset of Searcher a backend must provide to get
// batch execution via Fanout.
type SingleSearcher interface {
	Search(ctx context.Context, query string, k, rho int) ([]Hit, error)
}

// Fanout implements the BatchSearch contract on top of any single-query
// backend by running queries concurrently on a bounded worker group.
//
// The returned map contains exactly one entry per input id. The first query
// error cancels the remaining queries and is returned for the whole batch.
func Fanout(ctx context.Context, s SingleSearcher, queries, ids []string, k, rho, threads int) (map[string][]Hit, error) {
	if len(queries) != len(ids) {
		return nil, ErrQueryIDMismatch
	}
	if threads < 1 {
		threads = 1
	}

	hits := make([][]Hit, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			h, err := s.Search(gctx, query, k, rho)
			if err != nil {
				return err
			}
			hits[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string][]Hit, len(ids))
	for i, id := range ids {
		results[id] = hits[i]
	}
	return results, nil
}
