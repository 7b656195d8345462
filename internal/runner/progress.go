package runner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// percentMultiplier converts a ratio to a percentage (0-100).
const percentMultiplier = 100

// renderInterval throttles terminal redraws; the final tick always renders.
const renderInterval = 100 * time.Millisecond

// barWidth is the character width of the rendered progress bar.
const barWidth = 30

var barStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))

// Progress tracks topic consumption during a run. It is thread-safe so a
// renderer can read it while the run loop writes.
type Progress struct {
	mu sync.RWMutex

	total      int
	processed  int
	startTime  time.Time
	lastUpdate time.Time
}

// NewProgress creates a progress tracker for total topics.
func NewProgress(total int) *Progress {
	now := time.Now()
	return &Progress{
		total:      total,
		startTime:  now,
		lastUpdate: now,
	}
}

// Observe records that consumed of total topics have been processed. It has
// the Observer signature so a Progress can be passed straight to Run.
func (p *Progress) Observe(consumed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = consumed
	p.total = total
	p.lastUpdate = time.Now()
}

// Processed returns the number of topics consumed so far.
func (p *Progress) Processed() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processed
}

// PercentComplete returns the completion percentage (0-100).
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.total == 0 {
		return 0
	}
	return (float64(p.processed) / float64(p.total)) * percentMultiplier
}

// IsComplete reports whether every topic has been consumed.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processed >= p.total
}

// ElapsedTime returns the time elapsed since the run started.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.startTime)
}

// TopicsPerSecond returns the consumption rate.
func (p *Progress) TopicsPerSecond() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	elapsed := time.Since(p.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.processed) / elapsed
}

// EstimatedTimeRemaining extrapolates remaining time from the current rate.
// Returns 0 before the first topic completes.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.processed == 0 {
		return 0
	}
	elapsed := time.Since(p.startTime)
	avgPerTopic := elapsed / time.Duration(p.processed)
	return avgPerTopic * time.Duration(p.total-p.processed)
}

// Reporter renders run progress to a terminal, one redraw per observer tick
// (throttled). On a non-terminal writer it stays silent; run milestones are
// already covered by structured logging.
type Reporter struct {
	progress   *Progress
	out        io.Writer
	isTerminal bool
	lastRender time.Time
}

// NewReporter creates a Reporter for total topics writing to out. Terminal
// detection only applies when out is an *os.File.
func NewReporter(total int, out io.Writer) *Reporter {
	isTerminal := false
	if f, ok := out.(*os.File); ok {
		isTerminal = term.IsTerminal(int(f.Fd()))
	}
	return &Reporter{
		progress:   NewProgress(total),
		out:        out,
		isTerminal: isTerminal,
	}
}

// Observe implements the Observer signature: it updates the tracker and
// redraws the progress line.
func (r *Reporter) Observe(consumed, total int) {
	r.progress.Observe(consumed, total)
	if !r.isTerminal {
		return
	}
	now := time.Now()
	if consumed < total && now.Sub(r.lastRender) < renderInterval {
		return
	}
	r.lastRender = now
	r.render()
}

// Done finishes the progress line with a trailing newline.
func (r *Reporter) Done() {
	if !r.isTerminal {
		return
	}
	r.render()
	fmt.Fprintln(r.out)
}

// render redraws the in-place progress line.
func (r *Reporter) render() {
	processed := r.progress.Processed()
	percent := r.progress.PercentComplete()
	rate := r.progress.TopicsPerSecond()
	elapsed := r.progress.ElapsedTime().Round(time.Second)
	remaining := r.progress.EstimatedTimeRemaining().Round(time.Second)

	r.progress.mu.RLock()
	total := r.progress.total
	r.progress.mu.RUnlock()

	filled := 0
	if total > 0 {
		filled = processed * barWidth / total
	}
	bar := barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(r.out, "\r%3.0f%% |%s| %d/%d [%s<%s, %.1f topics/s]",
		percent, bar, processed, total, elapsed, remaining, rate)
}
