package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// RowReport summarizes a row once it is fully enumerated and all of its jobs finished.
type RowReport struct {
	Level    int
	Row      int
	Uploaded int
	Failed   int
	Bytes    int64
	Elapsed  time.Duration
}

// rowTracker counts the outstanding jobs of a row. It starts with one reference held by
// the producer, released once the row is enumerated, so the report fires exactly once.
type rowTracker struct {
	mu      sync.Mutex
	pending int
	started time.Time
	report  RowReport
	onDone  func(RowReport)
}

func newRowTracker(level, row int, onDone func(RowReport)) *rowTracker {
	return &rowTracker{
		pending: 1,
		started: time.Now(),
		report:  RowReport{Level: level, Row: row},
		onDone:  onDone,
	}
}

func (r *rowTracker) add() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending++
}

// finish records a job outcome and drops its reference.
func (r *rowTracker) finish(o Outcome) {
	r.complete(&o)
}

// release drops the producer's reference.
func (r *rowTracker) release() {
	r.complete(nil)
}

func (r *rowTracker) complete(o *Outcome) {
	r.mu.Lock()
	if o != nil {
		if o.Success() {
			r.report.Uploaded++
			r.report.Bytes += o.Bytes
		} else {
			r.report.Failed++
		}
	}
	r.pending--
	done := r.pending == 0
	report := r.report
	report.Elapsed = time.Since(r.started)
	r.mu.Unlock()

	if done && r.onDone != nil {
		r.onDone(report)
	}
}

// rowCursor follows a row-major traversal of one level and hands out the tracker of the
// current row. Moving to another row releases the previous row's tracker.
type rowCursor struct {
	level   int
	row     int
	tracker *rowTracker
	onDone  func(RowReport)
}

func newRowCursor(level int, onDone func(RowReport)) *rowCursor {
	return &rowCursor{level: level, onDone: onDone}
}

func (c *rowCursor) at(row int) *rowTracker {
	if c.tracker != nil && c.row == row {
		return c.tracker
	}
	c.close()
	c.row = row
	c.tracker = newRowTracker(c.level, row, c.onDone)
	return c.tracker
}

func (c *rowCursor) close() {
	if c.tracker != nil {
		c.tracker.release()
		c.tracker = nil
	}
}

func logRowReport(logger log.Logger) func(RowReport) {
	return func(r RowReport) {
		if r.Uploaded == 0 && r.Failed == 0 {
			return
		}
		if r.Failed > 0 {
			logger.Warnf("Row %d of level %d: uploaded %s (%s), %d failed, in %s",
				r.Row, r.Level, tileCount(r.Uploaded), units.HumanSize(float64(r.Bytes)), r.Failed, r.Elapsed.Round(time.Millisecond))
			return
		}
		logger.Infof("Row %d of level %d: uploaded %s (%s) in %s",
			r.Row, r.Level, tileCount(r.Uploaded), units.HumanSize(float64(r.Bytes)), r.Elapsed.Round(time.Millisecond))
	}
}

func tileCount(n int) string {
	if n == 1 {
		return "1 tile"
	}
	return fmt.Sprintf("%d tiles", n)
}
