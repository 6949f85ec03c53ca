// Package progress renders the coordinator's per-piece progress,
// spec.md §4.6 step 5 / §6 Outputs: "[<pct>] Downloaded piece #<i>. <k>
// of <n>" (the exact format is non-contractual; this package follows
// the teacher's own two renderings — a live uiprogress bar and a
// plain log line — rather than inventing a third).
package progress

import (
	"fmt"
	"strconv"

	"github.com/gosuri/uiprogress"
)

// Reporter is told about each newly completed piece.
type Reporter interface {
	Report(done, total, pieceIndex int)
	// Close releases any terminal resources (a running progress bar).
	// Safe to call on a Reporter that never started one.
	Close()
}

// LogReporter prints one line per completed piece, matching the
// teacher's torrent.Download percent-progress log line. The CLI uses it
// when ShowDownloadProgress is false; the terminal is not inspected.
type LogReporter struct {
	printf func(format string, args ...any)
}

// NewLogReporter returns a Reporter that writes through printf (pass
// log.Printf for the teacher's own behavior, or fmt.Printf for plain
// stdout).
func NewLogReporter(printf func(format string, args ...any)) *LogReporter {
	return &LogReporter{printf: printf}
}

func (r *LogReporter) Report(done, total, pieceIndex int) {
	pct := float64(done) / float64(total) * 100
	r.printf("[%0.2f%%] Downloaded piece #%d. %d of %d\n", pct, pieceIndex, done, total)
}

func (r *LogReporter) Close() {}

// BarReporter drives a live terminal progress bar via uiprogress,
// grounded on alice/download.go's downloadProgress.
type BarReporter struct {
	bar     *uiprogress.Bar
	done    int
	total   int
	started bool
}

// NewBarReporter starts a uiprogress render loop with one bar tracking
// total pieces.
func NewBarReporter(total int) *BarReporter {
	uiprogress.Start()
	bar := uiprogress.AddBar(total)
	bar.AppendCompleted()

	r := &BarReporter{bar: bar, total: total, started: true}
	bar.AppendFunc(func(b *uiprogress.Bar) string {
		return "pieces: " + strconv.Itoa(r.done) + "/" + strconv.Itoa(r.total)
	})
	bar.AppendElapsed()
	return r
}

func (r *BarReporter) Report(done, total, pieceIndex int) {
	r.done = done
	r.total = total
	r.bar.Incr()
}

func (r *BarReporter) Close() {
	if r.started {
		uiprogress.Stop()
		r.started = false
	}
}

// For implementations that want the exact contractual-shaped string
// without any I/O (e.g. tests asserting on the format).
func FormatLine(done, total, pieceIndex int) string {
	pct := float64(done) / float64(total) * 100
	return fmt.Sprintf("[%0.2f%%] Downloaded piece #%d. %d of %d", pct, pieceIndex, done, total)
}
