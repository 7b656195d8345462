// Package search defines the contract between the run driver and a search
// backend: a Searcher executes ranked retrieval for single queries or query
// batches against a pre-built index. Backends register themselves as named
// drivers so the CLI can open an index without knowing the engine behind it.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Common backend errors.
var (
	// ErrUnknownDriver is returned when opening an index with an
	// unregistered driver name.
	ErrUnknownDriver = errors.New("unknown search driver")

	// ErrQueryIDMismatch is returned when a batch call receives query and
	// id slices of different lengths.
	ErrQueryIDMismatch = errors.New("queries and ids must have the same length")
)

// Hit is one ranked retrieval result for a topic.
type Hit struct {
	// DocID is the external document identifier.
	DocID string

	// Score is the relevance score assigned by the backend.
	Score float32
}

// Searcher executes queries against a loaded index.
//
// Both calls are synchronous and return fully materialized results. The rho
// parameter bounds backend-internal work per query (for impact-ordered
// engines, the number of postings processed); it is not a wall-clock timeout
// and never causes an error on exhaustion.
type Searcher interface {
	// Search runs a single query and returns at most k hits, ranked by
	// descending score.
	Search(ctx context.Context, query string, k, rho int) ([]Hit, error)

	// BatchSearch runs a group of queries across up to threads workers and
	// returns one entry per input id. Iteration order of the returned map
	// is unspecified; callers that need ordering must re-project by id.
	BatchSearch(ctx context.Context, queries, ids []string, k, rho, threads int) (map[string][]Hit, error)

	// Close releases index resources.
	Close() error
}

// Options selects backend query-parsing behavior. The flags are not mutually
// exclusive; a backend ignores the ones it does not support.
type Options struct {
	// ASCIIParser requests the backend's plain ASCII query parser.
	ASCIIParser bool

	// QueryParser requests the backend's full query parser.
	QueryParser bool
}

// Driver opens a Searcher over an index stored at path.
type Driver interface {
	Open(path string, opts Options) (Searcher, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under the given name. It panics if the
// name is already taken, mirroring database/sql registration semantics.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("search: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("search: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Drivers returns the sorted names of all registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the index at path using the named driver.
func Open(name, path string, opts Options) (Searcher, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, Drivers())
	}
	s, err := d.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("opening index %s with driver %s: %w", path, name, err)
	}
	return s, nil
}
