// Package memory provides an in-process search driver over a small JSON
// impact index. It exists so the CLI runs end-to-end without an external
// engine and so tests have a deterministic backend; retrieval quality is not
// a goal. Register by blank import:
//
//	import _ "github.com/prasys/pyserini/internal/search/memory"
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/prasys/pyserini/internal/search"
)

// DriverName is the registry name of this driver.
const DriverName = "memory"

// indexFileName is the index file looked up when opening a directory.
const indexFileName = "index.json"

func init() {
	search.Register(DriverName, driver{})
}

type driver struct{}

// Open loads the JSON impact index at path. path may be the index file
// itself or a directory containing index.json.
func (driver) Open(path string, opts search.Options) (search.Searcher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, indexFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}

	// Postings are scored highest-impact first so a rho cutoff keeps the
	// most valuable postings.
	for _, ps := range file.Postings {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Impact > ps[j].Impact })
	}

	return &Searcher{postings: file.Postings, opts: opts}, nil
}

// indexFile is the on-disk index layout.
type indexFile struct {
	Postings map[string][]posting `json:"postings"`
}

// posting is one document entry in a term's impact-ordered postings list.
type posting struct {
	DocID  string  `json:"docid"`
	Impact float32 `json:"impact"`
}

// Searcher is an additive impact scorer: a document's score for a query is
// the sum of the impacts of the query terms that match it.
type Searcher struct {
	postings map[string][]posting
	opts     search.Options
}

// Search scores the query and returns at most k hits. rho caps the total
// number of postings processed across all query terms; once exhausted the
// remaining postings are skipped silently.
func (s *Searcher) Search(ctx context.Context, query string, k, rho int) ([]search.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make(map[string]float32)
	budget := rho
	for _, term := range s.tokenize(query) {
		if budget <= 0 {
			break
		}
		for _, p := range s.postings[term] {
			if budget <= 0 {
				break
			}
			scores[p.DocID] += p.Impact
			budget--
		}
	}

	hits := make([]search.Hit, 0, len(scores))
	for docID, score := range scores {
		hits = append(hits, search.Hit{DocID: docID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// BatchSearch fans the batch out over a bounded worker group. The index is
// read-only after Open, so concurrent Search calls are safe.
func (s *Searcher) BatchSearch(ctx context.Context, queries, ids []string, k, rho, threads int) (map[string][]search.Hit, error) {
	return search.Fanout(ctx, s, queries, ids, k, rho, threads)
}

// Close implements search.Searcher; the in-memory index holds no resources.
func (s *Searcher) Close() error { return nil }

// tokenize lowercases and splits the query on non-alphanumeric runes. With
// the ASCII parser option, non-ASCII runes are dropped first.
func (s *Searcher) tokenize(query string) []string {
	if s.opts.ASCIIParser {
		query = strings.Map(func(r rune) rune {
			if r > unicode.MaxASCII {
				return -1
			}
			return r
		}, query)
	}
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
