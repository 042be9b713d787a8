package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of links to process. Zero means unknown.
	TotalFiles int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source describes what is being fetched (for display).
	Source string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	completed      atomic.Int32
	skipped        atomic.Int32
	failed         atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	started        bool
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[dars] Fetching: %s\n", r.opts.Source)
	if r.opts.TotalFiles > 0 {
		fmt.Fprintf(r.opts.Output, "[dars] Links: %d | Workers: %d\n", r.opts.TotalFiles, r.opts.Workers)
	} else {
		fmt.Fprintf(r.opts.Output, "[dars] Workers: %d\n", r.opts.Workers)
	}

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status. It blocks
// until the final status is written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// FileStarted marks a file as in progress.
func (r *Reporter) FileStarted() {
	r.inProgress.Add(1)
}

// FileCompleted marks a file as stored.
func (r *Reporter) FileCompleted(size int64) {
	r.completedBytes.Add(size)
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// FileSkipped marks a file as skipped (already stored or no filename).
func (r *Reporter) FileSkipped() {
	r.skipped.Add(1)
	r.inProgress.Add(-1)
}

// FileFailed marks a file as failed.
func (r *Reporter) FileFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completedBytes.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	done := int(r.completed.Load() + r.skipped.Load() + r.failed.Load())
	total := "?"
	if r.opts.TotalFiles > 0 {
		total = fmt.Sprint(r.opts.TotalFiles)
	}

	fmt.Fprintf(r.opts.Output, "\r[dars] Files: %d/%s | %s | Speed: %s/s | %d in-progress | %d failed    ",
		done,
		total,
		FormatBytes(completed),
		FormatBytes(int64(speed)),
		r.inProgress.Load(),
		r.failed.Load(),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[dars] Files: %d stored | %d skipped | %d failed    \n",
		r.completed.Load(),
		r.skipped.Load(),
		r.failed.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[dars] Total: %s in %s | Average speed: %s/s\n",
		FormatBytes(completed),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes with IEC units, e.g. "1.5 KiB".
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
