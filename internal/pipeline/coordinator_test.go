package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// blockingRunner signals started and waits for release on every run.
type blockingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (r *blockingRunner) Rebuild(context.Context) (RebuildStats, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	<-r.release
	return RebuildStats{Parsed: 1}, nil
}

func TestCoordinator_ConcurrentTriggersRunOnce(t *testing.T) {
	runner := newBlockingRunner()
	c := NewCoordinator(runner, CoordinatorOptions{})

	var skips atomic.Int32
	c.OnRebuild(func(r Result) {
		if r.Status == StatusSkipped {
			skips.Add(1)
		}
	})

	const callers = 8
	var (
		wg      sync.WaitGroup
		gate    = make(chan struct{})
		started atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			if c.TriggerIfStale() {
				started.Add(1)
			}
		}()
	}
	close(gate)
	<-runner.started
	wg.Wait()

	if got := started.Load(); got != 1 {
		t.Fatalf("runs started = %d, want 1", got)
	}
	if !c.Status().Running {
		t.Error("Status().Running = false during a run")
	}
	if _, err := c.RunNow(context.Background()); !errors.Is(err, ErrSkipped) {
		t.Errorf("RunNow during run err = %v, want ErrSkipped", err)
	}

	close(runner.release)
	c.Wait()

	if got := runner.calls.Load(); got != 1 {
		t.Errorf("runner calls = %d, want 1", got)
	}
	st := c.Status()
	if st.Running || st.Runs != 1 || st.LastSuccess.IsZero() || st.LastStats.Parsed != 1 {
		t.Errorf("status = %+v", st)
	}
	// Every losing trigger plus the RunNow above.
	if got, want := skips.Load(), int32(callers-1+1); got != want {
		t.Errorf("skip notifications = %d, want %d", got, want)
	}
}

func TestCoordinator_Freshness(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	runner := RunnerFunc(func(context.Context) (RebuildStats, error) {
		calls.Add(1)
		return RebuildStats{}, nil
	})
	c := NewCoordinator(runner, CoordinatorOptions{Freshness: 5 * time.Minute, Now: clock.Now})

	if !c.TriggerIfStale() {
		t.Fatal("first trigger should start a run")
	}
	c.Wait()

	clock.Advance(4 * time.Minute)
	if c.TriggerIfStale() {
		t.Error("trigger within freshness window started a run")
	}

	clock.Advance(2 * time.Minute)
	if !c.TriggerIfStale() {
		t.Error("trigger after freshness window did not start a run")
	}
	c.Wait()

	if !c.Trigger() {
		t.Error("Trigger ignores freshness and should start a run")
	}
	c.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestCoordinator_FailureKeepsLastSuccess(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	fail := atomic.Bool{}
	runner := RunnerFunc(func(context.Context) (RebuildStats, error) {
		if fail.Load() {
			return RebuildStats{}, errors.New("scanning: permission denied")
		}
		return RebuildStats{TotalCached: 7}, nil
	})
	c := NewCoordinator(runner, CoordinatorOptions{Now: clock.Now})

	if _, err := c.RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	success := c.Status().LastSuccess

	fail.Store(true)
	clock.Advance(10 * time.Minute)
	if _, err := c.RunNow(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	st := c.Status()
	if !st.LastSuccess.Equal(success) {
		t.Errorf("LastSuccess moved on failure: %v -> %v", success, st.LastSuccess)
	}
	if st.LastError == "" || st.Failures != 1 || st.Runs != 2 {
		t.Errorf("status = %+v", st)
	}
	if st.LastStats.TotalCached != 7 {
		t.Errorf("LastStats replaced on failure: %+v", st.LastStats)
	}
	if !c.Stale() {
		t.Error("coordinator should stay stale after a failed run")
	}
	if st.Running {
		t.Error("guard not released after failure")
	}
}

func TestCoordinator_RunNowIgnoresCancel(t *testing.T) {
	runner := RunnerFunc(func(ctx context.Context) (RebuildStats, error) {
		return RebuildStats{}, ctx.Err()
	})
	c := NewCoordinator(runner, CoordinatorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.RunNow(ctx); err != nil {
		t.Errorf("RunNow with cancelled ctx = %v, want nil", err)
	}
}

func TestCoordinator_CloseRefusesTriggers(t *testing.T) {
	var calls atomic.Int32
	c := NewCoordinator(RunnerFunc(func(context.Context) (RebuildStats, error) {
		calls.Add(1)
		return RebuildStats{}, nil
	}), CoordinatorOptions{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.Trigger()
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	c.Close()
	closedAt := calls.Load()
	close(stop)
	wg.Wait()

	if got := calls.Load(); got != closedAt {
		t.Errorf("runs after Close = %d, want 0", got-closedAt)
	}
	if c.Trigger() || c.TriggerIfStale() {
		t.Error("trigger after Close started a run")
	}
	if c.Status().Running {
		t.Error("Status().Running = true after Close")
	}
}
