package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prasys/pyserini/internal/logging"
	"github.com/prasys/pyserini/internal/output"
	"github.com/prasys/pyserini/internal/runner"
	"github.com/prasys/pyserini/internal/search"
	_ "github.com/prasys/pyserini/internal/search/memory" // registers the memory driver
	"github.com/prasys/pyserini/internal/search/prebuilt"
	"github.com/prasys/pyserini/internal/topics"
)

// catalogFileName is the prebuilt-index catalog file inside the cache dir.
const catalogFileName = "prebuilt.yaml"

// searchParams holds the parameters for the search command execution.
type searchParams struct {
	index        string
	driver       string
	topicsArg    string
	topicsFormat string
	hits         int
	rho          int
	batchSize    int
	threads      int
	outputPath   string
	outputFormat string
	runTag       string
	asciiParser  bool
	queryParser  bool
}

// NewSearchCmd creates the "search" subcommand.
//
// Registered flags:
//   - --index: path to an index, or the name of a prebuilt index (required)
//   - --topics: path to a topic file, or a named topic set (required)
//   - --topics-format: topic file format, default or trec
//   - --hits: maximum hits per topic
//   - --rho: backend work budget per query (postings to process)
//   - --batch-size: topics per backend batch call; 1 disables batching
//   - --threads: backend workers per batch call; 1 disables concurrency
//   - --output: run file path (derived from topics and rho if omitted)
//   - --output-format: trec, msmarco, or jsonl
//   - --run-tag: run tag recorded in TREC output
//   - --driver: search driver to open the index with
//   - --ascii / --query: backend query-parser selection
func NewSearchCmd() *cobra.Command {
	var params searchParams

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a topic set against a search index",
		Long: `Run every topic in a topic set against a search index and write ranked
results to a run file.

With --batch-size above 1, topics are grouped and submitted as concurrent
batches; the run file order still matches topic order exactly, so batched and
single-query runs over the same index produce identical output.`,
		Example: searchCmdExample,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executeSearch(cmd, params)
		},
	}

	cmd.Flags().StringVar(&params.index, "index", "", "Path to an index or name of a prebuilt index")
	cmd.Flags().StringVar(&params.topicsArg, "topics", "", "Path to a topic file or name of a topic set")
	cmd.Flags().StringVar(&params.topicsFormat, "topics-format", string(topics.FormatDefault),
		"Topic file format: default (id<TAB>query) or trec")
	cmd.Flags().IntVar(&params.hits, "hits", 1000, "Maximum number of hits per topic")
	cmd.Flags().IntVar(&params.rho, "rho", 1_000_000_000, "Backend work budget: postings to process per query")
	cmd.Flags().IntVar(&params.batchSize, "batch-size", 1, "Topics per batch call; 1 disables batching")
	cmd.Flags().IntVar(&params.threads, "threads", 1, "Backend workers per batch call")
	cmd.Flags().StringVar(&params.outputPath, "output", "", "Run file path (derived if omitted)")
	cmd.Flags().StringVar(&params.outputFormat, "output-format", "", "Run file format: trec, msmarco, or jsonl")
	cmd.Flags().StringVar(&params.runTag, "run-tag", "", "Run tag recorded in TREC output")
	cmd.Flags().StringVar(&params.driver, "driver", "memory", "Search driver used to open the index")
	cmd.Flags().BoolVar(&params.asciiParser, "ascii", true, "Use the backend's ASCII query parser")
	cmd.Flags().BoolVar(&params.queryParser, "query", false, "Use the backend's full query parser")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("topics")

	return cmd
}

const searchCmdExample = `  # Single-query execution, TREC output
  pyserini search --index ./indexes/robust04 --topics topics.robust04.txt

  # Batches of 32 across 8 backend workers
  pyserini search --index robust04 --topics robust04 --batch-size 32 --threads 8

  # Cap hits and write MS MARCO format to an explicit path
  pyserini search --index msmarco-passage --topics msmarco-dev \
    --hits 10 --output-format msmarco --output run.dev.txt`

// executeSearch resolves the topic set and index, opens the scoped run
// writer, and hands control to the runner. All configuration errors (bad
// format names, missing topics, unresolvable index) surface before any topic
// is processed, so a failed setup produces no output file.
func executeSearch(cmd *cobra.Command, params searchParams) error {
	ctx := cmd.Context()
	cfg := configFromContext(ctx)
	log := logging.FromContext(ctx)

	outputFormatName := params.outputFormat
	if outputFormatName == "" {
		outputFormatName = cfg.Output.Format
	}
	outputFormat, err := output.ParseFormat(outputFormatName)
	if err != nil {
		return err
	}
	topicsFormat, err := topics.ParseFormat(params.topicsFormat)
	if err != nil {
		return err
	}

	topicsPath, setName, err := topics.Resolve(params.topicsArg, cfg.Topics.Dir)
	if err != nil {
		return err
	}
	set, err := topics.Load(topicsPath, topicsFormat)
	if err != nil {
		return err
	}
	set.Name = setName

	indexPath, err := resolveIndex(cmd, params.index, cfg.Cache.Dir, cfg.IndexDir())
	if err != nil {
		return err
	}

	backend, err := search.Open(params.driver, indexPath, search.Options{
		ASCIIParser: params.asciiParser,
		QueryParser: params.queryParser,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	outputPath, runTag := runFileNameAndTag(params, set.Name)

	sink, err := output.New(outputPath, outputFormat, runTag, params.hits)
	if err != nil {
		return err
	}
	// Safety net; Close is idempotent and the explicit call below reports
	// flush errors.
	defer sink.Close()

	log.Info().
		Str("topics", set.Name).
		Int("count", set.Len()).
		Str("index", indexPath).
		Str("output", outputPath).
		Int("batch_size", params.batchSize).
		Int("threads", params.threads).
		Msg("starting run")
	cmd.PrintErrf("Running %s topics, saving to %s...\n", set.Name, outputPath)

	reporter := runner.NewReporter(set.Len(), cmd.ErrOrStderr())
	runCfg := runner.Config{
		Hits:      params.hits,
		Rho:       params.rho,
		BatchSize: params.batchSize,
		Threads:   params.threads,
	}
	runErr := runner.Run(ctx, runTopics(set), runCfg, backend, sink, reporter.Observe)
	reporter.Done()

	// Close even on a failed run so records dispatched before the failure
	// stay on disk.
	if closeErr := sink.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return runErr
	}

	log.Info().Str("output", outputPath).Msg("run finished")
	return nil
}

// resolveIndex maps the --index argument to a local path: an existing path
// wins, otherwise the prebuilt catalog is consulted.
func resolveIndex(cmd *cobra.Command, arg, cacheDir, indexDir string) (string, error) {
	if _, err := os.Stat(arg); err == nil {
		return arg, nil
	}

	catalog, err := prebuilt.LoadCatalog(filepath.Join(cacheDir, catalogFileName))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return "", fmt.Errorf("creating index cache dir: %w", err)
	}
	path, err := catalog.Resolve(cmd.Context(), arg, indexDir)
	if err != nil {
		return "", fmt.Errorf("--index %q is neither a path nor a resolvable prebuilt index: %w", arg, err)
	}
	return path, nil
}

// runFileNameAndTag derives the run file path and tag. An omitted --output
// yields the deterministic name run.<topics>.rho_<rho>.txt, and in that case
// the tag defaults to the file name minus its extension.
func runFileNameAndTag(params searchParams, setName string) (string, string) {
	outputPath := params.outputPath
	runTag := params.runTag
	if outputPath == "" {
		outputPath = fmt.Sprintf("run.%s.rho_%d.txt", setName, params.rho)
		if runTag == "" {
			runTag = strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
		}
	}
	if runTag == "" {
		runTag = "pyserini"
	}
	return outputPath, runTag
}

// runTopics converts a loaded topic set into the runner's topic slice.
func runTopics(set *topics.Set) []runner.Topic {
	ts := make([]runner.Topic, len(set.Topics))
	for i, t := range set.Topics {
		ts[i] = runner.Topic{ID: t.ID, Text: t.Text}
	}
	return ts
}
