package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dverett/pricefeed-backend/internal/metrics"
)

// DailyFetcher is the worker surface the daily scheduler drives.
type DailyFetcher interface {
	FetchDaily(ctx context.Context, symbols []string, now time.Time) error
}

type DailySchedulerConfig struct {
	Interval time.Duration // e.g. 24*time.Hour
	Symbols  []string
	Budget   time.Duration
}

// DailyScheduler keeps the head of each series current by fetching
// yesterday's bars once per interval.
type DailyScheduler struct {
	fetcher DailyFetcher
	cfg     DailySchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewDailyScheduler(fetcher DailyFetcher, cfg DailySchedulerConfig) *DailyScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 10 * time.Minute
	}
	return &DailyScheduler{fetcher: fetcher, cfg: cfg}
}

func (s *DailyScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		fmt.Println("[SCHEDULER] Daily scrape scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

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

	fmt.Printf("[SCHEDULER] Daily scrape scheduler started (every %s, %d symbols)\n",
		s.cfg.Interval, len(s.cfg.Symbols))
}

func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	fmt.Println("[SCHEDULER] Daily scrape scheduler stopped")
}

func (s *DailyScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *DailyScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Budget)
	defer cancel()
	if err := s.fetcher.FetchDaily(ctx, s.cfg.Symbols, time.Now()); err != nil {
		metrics.ScrapeRunsTotal.WithLabelValues("failure").Inc()
		fmt.Printf("[SCHEDULER] Daily scrape finished with failures: %v\n", err)
		return
	}
	metrics.ScrapeRunsTotal.WithLabelValues("success").Inc()
}
