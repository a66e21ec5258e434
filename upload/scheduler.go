package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
	"github.com/mapcache-tools/tile-etl/internal"
	"github.com/mapcache-tools/tile-etl/sink"
	"github.com/mapcache-tools/tile-etl/tilegrid"
	"github.com/mapcache-tools/tile-etl/tilelocator"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency ...
	DefaultConcurrency = 40
	// DefaultJobTimeout ...
	DefaultJobTimeout = 60 * time.Second
)

// ErrRunHadFailures is returned by a run in which at least one tile failed.
var ErrRunHadFailures = errors.New("run had failures")

var errStopped = errors.New("submission stopped")

// TileSource finds tiles on disk. It is implemented by *tilelocator.Locator.
type TileSource interface {
	Locate(c tilegrid.Coordinate) (tilelocator.Tile, bool, error)
	Levels() ([]int, error)
	Walk(ctx context.Context, level int, fn func(tilelocator.Tile) error) error
}

// Options ...
type Options struct {
	Grid        tilegrid.Grid
	Concurrency int
	// Prefix is the folder every key is placed under.
	Prefix    string
	KeyLayout KeyLayout
	ACL       sink.ACL
	// JobTimeout bounds one sink.Put call.
	JobTimeout time.Duration
	// FailureThreshold is the number of consecutive failures that is reported as an error.
	// Zero disables the check.
	FailureThreshold int
	// AbortOnAuthFailure stops submitting jobs once FailureThreshold consecutive
	// access denied errors were seen.
	AbortOnAuthFailure bool
	// OnRowComplete receives the row summaries. Defaults to logging them.
	OnRowComplete func(RowReport)
}

// Plan describes an extent based run.
type Plan struct {
	Extent     tilegrid.Extent
	StartLevel int
	EndLevel   int
	Padding    int
}

// RunSummary ...
type RunSummary struct {
	Summary
	Candidates int
	Missing    int
	Elapsed    time.Duration
	Aborted    bool
}

// Scheduler drives the traversal and the worker pool.
type Scheduler struct {
	opts    Options
	source  TileSource
	sink    sink.Sink
	logger  log.Logger
	osProxy internal.OsProxy
}

// NewScheduler ...
func NewScheduler(opts Options, source TileSource, snk sink.Sink, logger log.Logger) (*Scheduler, error) {
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	if opts.JobTimeout < 0 {
		return nil, fmt.Errorf("job timeout must not be negative, got %s", opts.JobTimeout)
	}
	if opts.FailureThreshold < 0 {
		return nil, fmt.Errorf("failure threshold must not be negative, got %d", opts.FailureThreshold)
	}
	if source == nil || snk == nil {
		return nil, errors.New("tile source and sink are required")
	}

	if opts.Grid.WorldDelta == 0 {
		opts.Grid = tilegrid.WebMercator
	}
	if opts.JobTimeout == 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.OnRowComplete == nil {
		opts.OnRowComplete = logRowReport(logger)
	}

	return &Scheduler{
		opts:    opts,
		source:  source,
		sink:    snk,
		logger:  logger,
		osProxy: internal.RealOS{},
	}, nil
}

// Run uploads every tile present inside the plan's extent, level by level. Ranges for all
// levels are computed before the first upload so that a bad plan fails fast.
func (s *Scheduler) Run(ctx context.Context, plan Plan) (RunSummary, error) {
	if plan.StartLevel < 0 || plan.EndLevel < plan.StartLevel {
		return RunSummary{}, fmt.Errorf("invalid level range [%d, %d]", plan.StartLevel, plan.EndLevel)
	}

	ranges := make([]tilegrid.Range, 0, plan.EndLevel-plan.StartLevel+1)
	for level := plan.StartLevel; level <= plan.EndLevel; level++ {
		rng, err := s.opts.Grid.ComputeRange(plan.Extent, level, plan.Padding)
		if err != nil {
			return RunSummary{}, fmt.Errorf("compute tile range of level %d: %w", level, err)
		}
		ranges = append(ranges, rng)
	}

	r := s.newRun(ctx)
	defer r.stop()

	var err error
	for _, rng := range ranges {
		if r.stopCtx.Err() != nil {
			break
		}
		r.agg.SeeLevel(rng.Level)
		s.logger.Infof("Level %d: %s to check in %s", rng.Level, tileCount(rng.Count()), rng)
		if err = r.enumerateRange(rng); err != nil {
			break
		}
	}

	return r.finish(ctx, err)
}

// RunWalk uploads every tile present on disk at the given levels. With no levels the
// levels found on disk are used.
func (s *Scheduler) RunWalk(ctx context.Context, levels []int) (RunSummary, error) {
	if len(levels) == 0 {
		discovered, err := s.source.Levels()
		if err != nil {
			return RunSummary{}, fmt.Errorf("discover levels: %w", err)
		}
		if len(discovered) == 0 {
			s.logger.Warnf("No levels found")
		}
		levels = discovered
	}
	levels = append([]int(nil), levels...)
	sort.Ints(levels)

	r := s.newRun(ctx)
	defer r.stop()

	var err error
	for _, level := range levels {
		if r.stopCtx.Err() != nil {
			break
		}
		r.agg.SeeLevel(level)
		s.logger.Infof("Level %d: walking tiles on disk", level)
		if err = r.walkLevel(level); err != nil {
			break
		}
	}

	return r.finish(ctx, err)
}

// execute runs one job. It never returns an error; failures are carried in the outcome.
func (s *Scheduler) execute(ctx context.Context, job Job) (outcome Outcome) {
	start := time.Now()
	outcome = Outcome{Coordinate: job.Coordinate, Key: job.DestinationKey}
	defer func() {
		if p := recover(); p != nil {
			outcome.Err = fmt.Errorf("upload %s: panic: %v", job.DestinationKey, p)
			outcome.Bytes = 0
		}
		outcome.Duration = time.Since(start)
	}()

	data, err := s.osProxy.ReadFile(job.SourcePath)
	if err != nil {
		outcome.Err = fmt.Errorf("read %s: %w", job.SourcePath, err)
		return outcome
	}

	contentType := job.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	putCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()

	if err := s.sink.Put(putCtx, job.DestinationKey, data, contentType, s.opts.ACL); err != nil {
		outcome.Err = fmt.Errorf("upload %s: %w", job.DestinationKey, err)
		return outcome
	}

	outcome.Bytes = int64(len(data))
	return outcome
}

type run struct {
	s   *Scheduler
	agg *Aggregator
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// stopCtx ends submission; jobCtx is detached from cancellation so in-flight jobs drain.
	stopCtx context.Context
	stop    context.CancelFunc
	jobCtx  context.Context

	aborted    atomic.Bool
	candidates int
	missing    int
	started    time.Time
}

func (s *Scheduler) newRun(ctx context.Context) *run {
	stopCtx, stop := context.WithCancel(ctx)
	return &run{
		s:       s,
		agg:     NewAggregator(),
		sem:     semaphore.NewWeighted(int64(s.opts.Concurrency)),
		stopCtx: stopCtx,
		stop:    stop,
		jobCtx:  context.WithoutCancel(ctx),
		started: time.Now(),
	}
}

func (r *run) enumerateRange(rng tilegrid.Range) error {
	rows := newRowCursor(rng.Level, r.s.opts.OnRowComplete)
	defer rows.close()

	return rng.Each(func(c tilegrid.Coordinate) error {
		if r.stopCtx.Err() != nil {
			return errStopped
		}
		return r.enumerate(c, rows.at(c.Row))
	})
}

func (r *run) enumerate(c tilegrid.Coordinate, tracker *rowTracker) error {
	r.candidates++

	tile, ok, err := r.s.source.Locate(c)
	if err != nil {
		tracker.add()
		r.record(Outcome{
			Coordinate: c,
			Key:        r.s.opts.KeyLayout.Key(r.s.opts.Prefix, c),
			Err:        fmt.Errorf("locate %s: %w", c, err),
		}, tracker)
		return nil
	}
	if !ok {
		r.missing++
		return nil
	}

	return r.submit(NewJob(tile, r.s.opts.Prefix, r.s.opts.KeyLayout), tracker)
}

func (r *run) walkLevel(level int) error {
	rows := newRowCursor(level, r.s.opts.OnRowComplete)
	defer rows.close()

	return r.s.source.Walk(r.stopCtx, level, func(tile tilelocator.Tile) error {
		r.candidates++
		return r.submit(NewJob(tile, r.s.opts.Prefix, r.s.opts.KeyLayout), rows.at(tile.Coordinate.Row))
	})
}

// submit blocks until a worker slot is free, then runs the job in its own goroutine.
func (r *run) submit(job Job, tracker *rowTracker) error {
	if err := r.sem.Acquire(r.stopCtx, 1); err != nil {
		return errStopped
	}

	tracker.add()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)

		r.record(r.s.execute(r.jobCtx, job), tracker)
	}()

	return nil
}

func (r *run) record(o Outcome, tracker *rowTracker) {
	streak := r.agg.Record(o)

	if o.Success() {
		r.s.logger.Debugf("Uploaded %s to %s (%s)", o.Coordinate, o.Key, units.HumanSize(float64(o.Bytes)))
	} else {
		r.s.logger.Errorf("Failed to upload %s: %s", o.Coordinate, o.Err)
		r.checkStreak(streak)
	}

	tracker.finish(o)
}

func (r *run) checkStreak(streak Streak) {
	threshold := r.s.opts.FailureThreshold
	if threshold == 0 {
		return
	}

	if streak.Failures == threshold {
		r.s.logger.Errorf("%d consecutive uploads failed, check the sink configuration and credentials", streak.Failures)
	}

	if r.s.opts.AbortOnAuthFailure && streak.AuthFailures >= threshold && r.aborted.CompareAndSwap(false, true) {
		r.s.logger.Errorf("Aborting: %d consecutive uploads were denied access, no new uploads will be started", streak.AuthFailures)
		r.stop()
	}
}

func (r *run) finish(ctx context.Context, enumErr error) (RunSummary, error) {
	r.wg.Wait()

	summary := RunSummary{
		Summary:    r.agg.Summary(),
		Candidates: r.candidates,
		Missing:    r.missing,
		Elapsed:    time.Since(r.started),
		Aborted:    r.aborted.Load(),
	}

	r.s.logger.Println()
	r.s.logger.Infof("Levels: %v", summary.LevelsSeen)
	r.s.logger.Infof("Candidates: %d, missing: %d", summary.Candidates, summary.Missing)
	r.s.logger.Infof("Uploaded: %s (%s), failed: %d", tileCount(summary.TilesUploaded), units.HumanSize(float64(summary.BytesUploaded)), summary.TilesFailed)
	for _, level := range summary.LevelsSeen {
		if merr := summary.ErrorsByLevel[level]; merr != nil {
			r.s.logger.Warnf("Level %d: %d errors, first: %s", level, len(merr.Errors), merr.Errors[0])
		}
	}
	r.s.logger.Infof("Elapsed: %s", summary.Elapsed.Round(time.Millisecond))

	if enumErr != nil && !errors.Is(enumErr, errStopped) && r.stopCtx.Err() == nil {
		return summary, enumErr
	}

	switch {
	case summary.Aborted:
		return summary, fmt.Errorf("%w: aborted after repeated authorization failures: %w", ErrRunHadFailures, sink.ErrAccessDenied)
	case ctx.Err() != nil:
		return summary, fmt.Errorf("run cancelled: %w", ctx.Err())
	case summary.TilesFailed > 0:
		return summary, fmt.Errorf("%w: %d of %d tiles failed", ErrRunHadFailures, summary.TilesFailed, summary.TilesFailed+summary.TilesUploaded)
	}

	r.s.logger.Donef("Uploaded %s", tileCount(summary.TilesUploaded))
	return summary, nil
}
