package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderAttempts counts individual provider tries by outcome.
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_provider_attempts_total",
			Help: "Number of payment attempts per provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// TransactionsDispatched counts terminal dispatch outcomes.
	TransactionsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_transactions_total",
			Help: "Number of dispatched transactions by provider and status",
		},
		[]string{"provider", "status"},
	)

	// DispatchDuration observes wall-clock time from first attempt to terminal outcome.
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_dispatch_duration_seconds",
			Help:    "Duration of the full dispatch sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState tracks breaker state per provider (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// IdempotencyReplays counts requests answered from a stored guard snapshot.
	IdempotencyReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_idempotency_replays_total",
			Help: "Number of requests served from an idempotency guard snapshot",
		},
	)
)
