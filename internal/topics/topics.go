// Package topics loads topic sets: ordered (id, query text) pairs consumed
// exactly once per run. A set can be given as a file path or as a named set
// resolved against the configured topics directory. Gzip-compressed files are
// transparently decompressed.
package topics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Common topic-set errors.
var (
	// ErrUnknownFormat is returned for an unrecognized topics format name.
	ErrUnknownFormat = errors.New("unknown topics format")

	// ErrNotFound is returned when a named topic set cannot be resolved to
	// a file.
	ErrNotFound = errors.New("topic set not found")
)

// Topic is one query unit: an opaque identifier plus raw query text.
// Immutable once read.
type Topic struct {
	ID   string
	Text string
}

// Format identifies the on-disk layout of a topic file.
type Format string

// Supported topic file formats.
const (
	// FormatDefault is tab-separated lines: id<TAB>query text.
	FormatDefault Format = "default"

	// FormatTREC is the classic SGML-ish TREC topic layout with <top>,
	// <num> and <title> tags.
	FormatTREC Format = "trec"
)

// ParseFormat converts a user-supplied format name into a Format.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatDefault:
		return FormatDefault, nil
	case FormatTREC:
		return FormatTREC, nil
	default:
		return "", fmt.Errorf("%w: %q (available: %s, %s)", ErrUnknownFormat, name, FormatDefault, FormatTREC)
	}
}

// Set is a loaded topic set. Topics preserve file order.
type Set struct {
	// Name is the set name used for run tagging and default output naming:
	// the base file name without extensions for file paths, or the given
	// name for named sets.
	Name string

	// Topics is the ordered sequence of topics.
	Topics []Topic
}

// Len returns the total topic count, used for progress reporting.
func (s *Set) Len() int { return len(s.Topics) }

// Resolve maps a topic-set argument to a file path plus the set name used
// for run tagging. An existing path is used as-is and named after its file;
// otherwise the argument is treated as a set name and looked up in dir under
// common extensions.
func Resolve(arg, dir string) (string, string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, setName(arg), nil
	}
	exts := []string{".tsv", ".tsv.gz", ".txt", ".txt.gz"}
	for _, ext := range exts {
		candidate := filepath.Join(dir, arg+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, arg, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q is not a file and no %s.{tsv,txt}[.gz] exists in %s", ErrNotFound, arg, arg, dir)
}

// Load reads the topic file at path in the given format.
func Load(path string, format Format) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening topics file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			return nil, fmt.Errorf("opening gzip topics file: %w", gzErr)
		}
		defer gz.Close()
		r = gz
	}

	var ts []Topic
	switch format {
	case FormatDefault:
		ts, err = parseTSV(r)
	case FormatTREC:
		ts, err = parseTREC(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing topics file %s: %w", path, err)
	}

	return &Set{Name: setName(path), Topics: ts}, nil
}

// setName strips the directory and known topic-file extensions from a path.
func setName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	for _, ext := range []string{".tsv", ".txt", ".trec"} {
		if strings.TrimSuffix(name, ext) != name {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// parseTSV reads id<TAB>text lines. Blank lines are skipped; extra tabs stay
// part of the query text.
func parseTSV(r io.Reader) ([]Topic, error) {
	var ts []Topic
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		id, query, ok := strings.Cut(text, "\t")
		if !ok || strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("line %d: expected id<TAB>query", line)
		}
		ts = append(ts, Topic{ID: strings.TrimSpace(id), Text: strings.TrimSpace(query)})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ts, nil
}

// parseTREC reads <top> blocks, taking <num> as the id and <title> as the
// query text. Title text may continue on following lines until the next tag.
func parseTREC(r io.Reader) ([]Topic, error) {
	var (
		ts      []Topic
		cur     Topic
		inTop   bool
		inTitle bool
		title   []string
	)

	flushTitle := func() {
		if inTitle {
			cur.Text = strings.Join(title, " ")
			title = title[:0]
			inTitle = false
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "<top>"):
			inTop = true
			cur = Topic{}
		case strings.HasPrefix(line, "</top>"):
			flushTitle()
			if inTop && cur.ID != "" {
				ts = append(ts, cur)
			}
			inTop = false
		case !inTop:
			// Ignore anything outside a topic block.
		case strings.HasPrefix(line, "<num>"):
			flushTitle()
			id := strings.TrimPrefix(line, "<num>")
			id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "Number:"))
			cur.ID = id
		case strings.HasPrefix(line, "<title>"):
			inTitle = true
			if t := strings.TrimSpace(strings.TrimPrefix(line, "<title>")); t != "" {
				title = append(title, t)
			}
		case strings.HasPrefix(line, "<"):
			// Any other tag (<desc>, <narr>, ...) ends the title.
			flushTitle()
		case inTitle && line != "":
			title = append(title, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ts, nil
}
