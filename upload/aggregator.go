package upload

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mapcache-tools/tile-etl/sink"
	"github.com/mapcache-tools/tile-etl/tilegrid"
)

// maxErrorsPerLevel bounds the errors kept per level; failures beyond it are only counted.
const maxErrorsPerLevel = 100

// Outcome is the result of one job.
type Outcome struct {
	Coordinate tilegrid.Coordinate
	Key        string
	Bytes      int64
	Err        error
	Duration   time.Duration
}

// Success ...
func (o Outcome) Success() bool { return o.Err == nil }

// Summary is a snapshot of the aggregated outcomes.
type Summary struct {
	LevelsSeen    []int
	TilesUploaded int
	TilesFailed   int
	BytesUploaded int64
	// ErrorsByLevel holds at most maxErrorsPerLevel errors per level.
	ErrorsByLevel map[int]*multierror.Error
}

// Streak reports the consecutive failures observed when an outcome was recorded.
type Streak struct {
	Failures     int
	AuthFailures int
}

// Aggregator collects outcomes from concurrent workers.
type Aggregator struct {
	mu            sync.Mutex
	levels        map[int]bool
	uploaded      int
	failed        int
	bytes         int64
	errorsByLevel map[int]*multierror.Error
	streak        Streak
}

// NewAggregator ...
func NewAggregator() *Aggregator {
	return &Aggregator{
		levels:        map[int]bool{},
		errorsByLevel: map[int]*multierror.Error{},
	}
}

// SeeLevel marks a level as visited even if it produces no outcome.
func (a *Aggregator) SeeLevel(level int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.levels[level] = true
}

// Record adds an outcome and returns the failure streak including it.
func (a *Aggregator) Record(o Outcome) Streak {
	a.mu.Lock()
	defer a.mu.Unlock()

	level := o.Coordinate.Level
	a.levels[level] = true

	if o.Success() {
		a.uploaded++
		a.bytes += o.Bytes
		a.streak = Streak{}
		return a.streak
	}

	a.failed++
	if merr := a.errorsByLevel[level]; merr == nil || len(merr.Errors) < maxErrorsPerLevel {
		a.errorsByLevel[level] = multierror.Append(merr, o.Err)
	}

	a.streak.Failures++
	if errors.Is(o.Err, sink.ErrAccessDenied) {
		a.streak.AuthFailures++
	} else {
		a.streak.AuthFailures = 0
	}
	return a.streak
}

// Summary returns a snapshot of the counters.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	levels := make([]int, 0, len(a.levels))
	for level := range a.levels {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	errs := make(map[int]*multierror.Error, len(a.errorsByLevel))
	for level, merr := range a.errorsByLevel {
		errs[level] = &multierror.Error{Errors: append([]error(nil), merr.Errors...)}
	}

	return Summary{
		LevelsSeen:    levels,
		TilesUploaded: a.uploaded,
		TilesFailed:   a.failed,
		BytesUploaded: a.bytes,
		ErrorsByLevel: errs,
	}
}
