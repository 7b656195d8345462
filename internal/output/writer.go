// Package output serializes ranked results to a run file. A Writer is a
// scoped resource: open it before the first topic, write once per topic, and
// close it on every exit path so already-written records survive a failed run.
package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prasys/pyserini/internal/search"
)

// Common writer errors.
var (
	// ErrUnknownFormat is returned for an unrecognized output format name.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("run writer is closed")
)

// Format identifies a run-file layout.
type Format string

// Supported run-file formats.
const (
	// FormatTREC is the standard six-column TREC run format:
	// qid Q0 docid rank score tag.
	FormatTREC Format = "trec"

	// FormatMSMARCO is the MS MARCO leaderboard format: qid\tdocid\trank.
	FormatMSMARCO Format = "msmarco"

	// FormatJSONL writes one JSON object per topic.
	FormatJSONL Format = "jsonl"
)

// ParseFormat converts a user-supplied format name into a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatTREC:
		return FormatTREC, nil
	case FormatMSMARCO:
		return FormatMSMARCO, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %q (available: %s, %s, %s)",
			ErrUnknownFormat, name, FormatTREC, FormatMSMARCO, FormatJSONL)
	}
}

// Writer appends serialized result records to a run file.
type Writer struct {
	f       *os.File
	buf     *bufio.Writer
	format  Format
	tag     string
	maxHits int
	closed  bool
}

// New creates the run file at path, truncating any existing file. tag is the
// run tag recorded in TREC output; maxHits caps the hits written per topic.
func New(path string, format Format, tag string, maxHits int) (*Writer, error) {
	switch format {
	case FormatTREC, FormatMSMARCO, FormatJSONL:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run file: %w", err)
	}

	return &Writer{
		f:       f,
		buf:     bufio.NewWriter(f),
		format:  format,
		tag:     tag,
		maxHits: maxHits,
	}, nil
}

// jsonlRecord is the per-topic JSONL layout.
type jsonlRecord struct {
	TopicID string     `json:"topic_id"`
	Hits    []jsonlHit `json:"hits"`
}

type jsonlHit struct {
	DocID string  `json:"docid"`
	Rank  int     `json:"rank"`
	Score float32 `json:"score"`
}

// Write appends one record per hit (or one object for JSONL) for the given
// topic. Hits beyond the configured cap are dropped. Safe to call repeatedly
// until Close.
func (w *Writer) Write(topicID string, hits []search.Hit) error {
	if w.closed {
		return ErrClosed
	}
	if w.maxHits >= 0 && len(hits) > w.maxHits {
		hits = hits[:w.maxHits]
	}

	switch w.format {
	case FormatTREC:
		for i, hit := range hits {
			if _, err := fmt.Fprintf(w.buf, "%s Q0 %s %d %.6f %s\n",
				topicID, hit.DocID, i+1, hit.Score, w.tag); err != nil {
				return fmt.Errorf("writing topic %s: %w", topicID, err)
			}
		}
	case FormatMSMARCO:
		for i, hit := range hits {
			if _, err := fmt.Fprintf(w.buf, "%s\t%s\t%d\n", topicID, hit.DocID, i+1); err != nil {
				return fmt.Errorf("writing topic %s: %w", topicID, err)
			}
		}
	case FormatJSONL:
		rec := jsonlRecord{TopicID: topicID, Hits: make([]jsonlHit, len(hits))}
		for i, hit := range hits {
			rec.Hits[i] = jsonlHit{DocID: hit.DocID, Rank: i + 1, Score: hit.Score}
		}
		enc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding topic %s: %w", topicID, err)
		}
		if _, err := w.buf.Write(append(enc, '\n')); err != nil {
			return fmt.Errorf("writing topic %s: %w", topicID, err)
		}
	}
	return nil
}

// Close flushes buffered records and closes the file. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flushing run file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing run file: %w", closeErr)
	}
	return nil
}

// Path returns the run file path.
func (w *Writer) Path() string { return w.f.Name() }
