package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure reason labels. Timeout is deliberately separate from worker: a
// timeout may mean the chunk span is too large for the worker's ceiling.
const (
	ReasonWorker    = "worker"
	ReasonTimeout   = "timeout"
	ReasonStore     = "store"
	ReasonMalformed = "malformed"
)

// Invocation outcome labels.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeNoop      = "noop"
	OutcomeFailed    = "failed"
)

var (
	BackfillInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_backfill_invocations_total",
			Help: "Backfill orchestrator invocations by outcome",
		},
		[]string{"symbol", "outcome"},
	)

	BackfillChunksFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_backfill_chunks_fetched_total",
			Help: "Chunks successfully fetched and advanced past",
		},
		[]string{"symbol"},
	)

	BackfillFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_backfill_failures_total",
			Help: "Backfill invocation failures by reason",
		},
		[]string{"symbol", "reason"},
	)

	BackfillRemainingDays = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricefeed_backfill_remaining_days",
			Help: "Days of history still unfetched per symbol",
		},
		[]string{"symbol"},
	)

	WorkerInvocationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricefeed_worker_invocation_seconds",
			Help:    "Duration of data fetch worker invocations",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"symbol"},
	)

	ScrapeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_scrape_runs_total",
			Help: "Daily scrape runs by status",
		},
		[]string{"status"},
	)
)
