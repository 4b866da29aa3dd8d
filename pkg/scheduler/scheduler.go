// Package scheduler runs periodic fetch-and-store cycles, one independent loop per feed.
// A failed cycle is recorded and logged, the loop keeps its cadence and tries again on the next tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/metrics"
	"github.com/umputun/spacefeed/pkg/source"
	"github.com/umputun/spacefeed/pkg/store"
)

//go:generate moq -out mocks/ingestor.go -pkg mocks -skip-ensure -fmt goimports . Ingestor

// ErrUnknownFeed is returned for feeds without a task
var ErrUnknownFeed = errors.New("unknown feed")

// Ingestor runs one fetch-and-store operation of a feed and returns number of written records
type Ingestor interface {
	Ingest(ctx context.Context, feed domain.FeedID) (int, error)
}

// TaskConfig defines a periodic feed job
type TaskConfig struct {
	Feed     domain.FeedID
	Interval time.Duration
}

// Params for NewScheduler
type Params struct {
	Tasks        []TaskConfig
	Ingestor     Ingestor
	CycleTimeout time.Duration // bound of a single cycle, default 2m
	RunOnStart   bool          // run the first cycle right away instead of after one interval
}

// Scheduler drives periodic fetch-and-store cycles of all configured feeds
type Scheduler struct {
	ingestor     Ingestor
	cycleTimeout time.Duration
	runOnStart   bool

	tasks  []*task
	byFeed map[domain.FeedID]*task

	mu      sync.Mutex // guards cancel and started
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// task is the scheduler-owned state of one feed
type task struct {
	run   sync.Mutex // held for the whole cycle, so cycles of a feed never overlap
	mu    sync.RWMutex
	state domain.FeedTask
}

// NewScheduler makes scheduler with one task per configured feed. Tasks with non-positive interval
// get one minute, duplicated feeds are ignored.
func NewScheduler(params Params) *Scheduler {
	if params.CycleTimeout <= 0 {
		params.CycleTimeout = 2 * time.Minute
	}

	s := &Scheduler{
		ingestor:     params.Ingestor,
		cycleTimeout: params.CycleTimeout,
		runOnStart:   params.RunOnStart,
		byFeed:       make(map[domain.FeedID]*task, len(params.Tasks)),
	}
	for _, tc := range params.Tasks {
		if _, dup := s.byFeed[tc.Feed]; dup {
			lgr.Printf("[WARN] feed %s configured more than once, ignored", tc.Feed)
			continue
		}
		if tc.Interval <= 0 {
			tc.Interval = time.Minute
		}
		t := &task{state: domain.FeedTask{Feed: tc.Feed, Interval: tc.Interval, LastStatus: domain.StatusNever}}
		s.tasks = append(s.tasks, t)
		s.byFeed[tc.Feed] = t
	}
	return s
}

// Start launches one loop per task. Loops run until Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	lgr.Printf("[INFO] scheduler started with %d feeds", len(s.tasks))
}

// Stop signals all loops to exit and waits for them. A cycle in flight completes its write first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	lgr.Printf("[INFO] stopping scheduler...")
	cancel()
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// RunNow runs one cycle of the feed synchronously and returns the task state after it.
// It waits for a cycle of the same feed already in progress.
func (s *Scheduler) RunNow(ctx context.Context, feed domain.FeedID) (domain.FeedTask, error) {
	t, ok := s.byFeed[feed]
	if !ok {
		return domain.FeedTask{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feed)
	}
	lgr.Printf("[INFO] triggered immediate fetch of %s", feed)
	s.runCycle(ctx, t)
	return t.snapshot(), nil
}

// Tasks returns state of all tasks in configuration order
func (s *Scheduler) Tasks() []domain.FeedTask {
	res := make([]domain.FeedTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		res = append(res, t.snapshot())
	}
	return res
}

// Task returns state of the feed's task
func (s *Scheduler) Task(feed domain.FeedID) (domain.FeedTask, bool) {
	t, ok := s.byFeed[feed]
	if !ok {
		return domain.FeedTask{}, false
	}
	return t.snapshot(), true
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	interval := t.snapshot().Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.runCycle(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a tick may be pending together with cancellation
			if ctx.Err() != nil {
				return
			}
			s.runCycle(ctx, t)
		}
	}
}

// runCycle runs one fetch-and-store cycle and records its result. The cycle is detached
// from ctx cancellation and bounded by cycleTimeout instead, so Stop never abandons a write.
func (s *Scheduler) runCycle(ctx context.Context, t *task) {
	t.run.Lock()
	defer t.run.Unlock()

	feed := t.snapshot().Feed
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
	defer cancel()

	started := time.Now()
	n, err := s.ingest(cycleCtx, feed)
	took := time.Since(started)
	t.record(started, took, n, err)

	if err != nil {
		metrics.FetchCycle(string(feed), string(domain.StatusFailure), 0, took)
		lgr.Printf("[WARN] fetch %s failed (%s), retry in %v: %v", feed, failureKind(err), t.snapshot().Interval, err)
		return
	}
	metrics.FetchCycle(string(feed), string(domain.StatusSuccess), n, took)
	lgr.Printf("[DEBUG] fetch %s stored %d records in %v", feed, n, took.Round(time.Millisecond))
}

// ingest calls the ingestor, a panic is turned into a failed cycle
func (s *Scheduler) ingest(ctx context.Context, feed domain.FeedID) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			lgr.Printf("[ERROR] fetch %s panicked: %v\n%s", feed, r, debug.Stack())
			n, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.ingestor.Ingest(ctx, feed)
}

func (t *task) snapshot() domain.FeedTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *task) record(started time.Time, took time.Duration, n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if started.After(t.state.LastRun) {
		t.state.LastRun = started
	}
	t.state.LastDuration = took
	t.state.Runs++
	if err != nil {
		t.state.LastStatus = domain.StatusFailure
		t.state.LastError = err.Error()
		t.state.Failures++
		return
	}
	t.state.LastStatus = domain.StatusSuccess
	t.state.LastError = ""
	t.state.Records = n
}

// failureKind names the class of a cycle error for logs
func failureKind(err error) string {
	switch {
	case source.IsTransient(err):
		return "transient"
	case errors.Is(err, store.ErrUnavailable):
		return "store unavailable"
	case errors.Is(err, source.ErrPermanent):
		return "permanent"
	default:
		return "error"
	}
}
