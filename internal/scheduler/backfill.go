package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BackfillRunner is the orchestrator surface the scheduler drives. Each call
// is one independent, restartable invocation; the scheduler provides the
// retry cadence and never retries within a tick.
type BackfillRunner interface {
	RunAll(ctx context.Context, symbols []string) error
}

type BackfillSchedulerConfig struct {
	Interval time.Duration // e.g. 1*time.Hour
	Symbols  []string
	// InvocationBudget bounds one whole tick, covering every symbol.
	InvocationBudget time.Duration
}

// BackfillScheduler periodically fires backfill invocations. A failing tick
// is logged and dropped; the next tick retries from the durable checkpoint,
// so the ticker itself must never be disrupted by invocation errors.
type BackfillScheduler struct {
	runner BackfillRunner
	cfg    BackfillSchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewBackfillScheduler(runner BackfillRunner, cfg BackfillSchedulerConfig) *BackfillScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.InvocationBudget <= 0 {
		cfg.InvocationBudget = 30 * time.Minute
	}
	return &BackfillScheduler{runner: runner, cfg: cfg}
}

func (s *BackfillScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		fmt.Println("[SCHEDULER] Backfill scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	// First invocation on startup, then the recurring ticker.
	go func() {
		s.tick()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	fmt.Printf("[SCHEDULER] Backfill scheduler started (every %s, %d symbols)\n",
		s.cfg.Interval, len(s.cfg.Symbols))
}

func (s *BackfillScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	fmt.Println("[SCHEDULER] Backfill scheduler stopped")
}

func (s *BackfillScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow fires one invocation outside the normal schedule.
func (s *BackfillScheduler) RunNow(ctx context.Context) error {
	fmt.Println("[SCHEDULER] Manual backfill invocation triggered")
	return s.runner.RunAll(ctx, s.cfg.Symbols)
}

func (s *BackfillScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.InvocationBudget)
	defer cancel()
	if err := s.runner.RunAll(ctx, s.cfg.Symbols); err != nil {
		fmt.Printf("[SCHEDULER] Backfill invocation finished with failures: %v\n", err)
	}
}
