package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theirongolddev/ccdash/internal/logger"
)

// ErrSkipped is returned by RunNow when a rebuild is already running.
var ErrSkipped = errors.New("rebuild already running")

// DefaultFreshness is how long a successful rebuild satisfies TriggerIfStale.
const DefaultFreshness = 5 * time.Minute

// Runner performs one rebuild cycle. *Rebuilder implements it.
type Runner interface {
	Rebuild(ctx context.Context) (RebuildStats, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) (RebuildStats, error)

// Rebuild calls f(ctx).
func (f RunnerFunc) Rebuild(ctx context.Context) (RebuildStats, error) { return f(ctx) }

// Outcome classifies a rebuild attempt.
type Outcome string

const (
	StatusOK      Outcome = "ok"
	StatusFailed  Outcome = "failed"
	StatusSkipped Outcome = "skipped"
)

// Result describes one attempt, delivered to OnRebuild listeners.
type Result struct {
	Status     Outcome      `json:"status"`
	Stats      RebuildStats `json:"stats"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// State is a point-in-time view of the coordinator.
type State struct {
	Running     bool         `json:"running"`
	LastSuccess time.Time    `json:"last_success,omitzero"`
	LastAttempt time.Time    `json:"last_attempt,omitzero"`
	LastStats   RebuildStats `json:"last_stats"`
	LastError   string       `json:"last_error,omitempty"`
	Runs        int64        `json:"runs"`
	Failures    int64        `json:"failures"`
}

// CoordinatorOptions configure NewCoordinator.
type CoordinatorOptions struct {
	Freshness time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Coordinator serializes rebuilds. At most one cycle runs at a time; a
// trigger that finds one running backs off instead of waiting.
type Coordinator struct {
	runner    Runner
	freshness time.Duration
	now       func() time.Time
	log       *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu          sync.RWMutex
	closed      bool
	lastSuccess time.Time
	lastAttempt time.Time
	lastStats   RebuildStats
	lastErr     string
	runs        int64
	failures    int64
	listeners   []func(Result)
}

// NewCoordinator returns an idle coordinator that has never succeeded, so
// the first TriggerIfStale starts a run.
func NewCoordinator(runner Runner, opts CoordinatorOptions) *Coordinator {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		runner:    runner,
		freshness: opts.Freshness,
		now:       opts.Now,
		log:       logger.OrNop(opts.Logger),
	}
}

// OnRebuild registers fn to receive every attempt's Result, including
// skips. fn runs on the rebuilding goroutine and must not block.
func (c *Coordinator) OnRebuild(fn func(Result)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Stale reports whether the last success is older than the freshness threshold.
func (c *Coordinator) Stale() bool {
	c.mu.RLock()
	last := c.lastSuccess
	c.mu.RUnlock()
	return last.IsZero() || c.now().Sub(last) > c.freshness
}

// TriggerIfStale starts a background rebuild when the cache is stale and
// none is running. It never blocks and reports whether a run started.
func (c *Coordinator) TriggerIfStale() bool {
	if !c.Stale() {
		return false
	}
	return c.Trigger()
}

// Trigger starts a background rebuild unless one is running.
func (c *Coordinator) Trigger() bool {
	if !c.running.CompareAndSwap(false, true) {
		c.skipped()
		return false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.running.Store(false)
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		c.run(context.Background())
	}()
	return true
}

// RunNow rebuilds synchronously. It returns ErrSkipped without running
// when another rebuild holds the guard. Cancelling ctx does not interrupt
// a cycle that has started.
func (c *Coordinator) RunNow(ctx context.Context) (RebuildStats, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.skipped()
		return RebuildStats{}, ErrSkipped
	}
	return c.run(ctx)
}

// Wait blocks until every background rebuild started so far has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close makes later calls to Trigger and TriggerIfStale return false, then
// waits for any background rebuild to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

// Status returns the current state.
func (c *Coordinator) Status() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		Running:     c.running.Load(),
		LastSuccess: c.lastSuccess,
		LastAttempt: c.lastAttempt,
		LastStats:   c.lastStats,
		LastError:   c.lastErr,
		Runs:        c.runs,
		Failures:    c.failures,
	}
}

// run executes one cycle. The caller must hold the guard; run releases it.
func (c *Coordinator) run(ctx context.Context) (RebuildStats, error) {
	defer c.running.Store(false)

	started := c.now()
	stats, err := c.runner.Rebuild(context.WithoutCancel(ctx))
	finished := c.now()

	res := Result{Status: StatusOK, Stats: stats, StartedAt: started, FinishedAt: finished}

	c.mu.Lock()
	c.runs++
	c.lastAttempt = finished
	if err != nil {
		c.failures++
		c.lastErr = err.Error()
		res.Status = StatusFailed
		res.Error = err.Error()
	} else {
		c.lastSuccess = finished
		c.lastStats = stats
		c.lastErr = ""
	}
	listeners := append([]func(Result){}, c.listeners...)
	c.mu.Unlock()

	if err != nil {
		c.log.Error("rebuild failed", "run_id", stats.RunID, "err", err)
	}
	for _, fn := range listeners {
		fn(res)
	}
	return stats, err
}

func (c *Coordinator) skipped() {
	c.log.Debug("rebuild already running, skipped")

	c.mu.RLock()
	listeners := append([]func(Result){}, c.listeners...)
	c.mu.RUnlock()

	now := c.now()
	for _, fn := range listeners {
		fn(Result{Status: StatusSkipped, StartedAt: now, FinishedAt: now})
	}
}
