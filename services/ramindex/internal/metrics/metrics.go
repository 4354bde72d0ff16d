package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TracesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ramindex_traces_processed_total",
			Help: "Total number of transaction traces applied",
		},
	)

	ActionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramindex_actions_recorded_total",
			Help: "Total number of RAM actions appended to the ledger",
		},
		[]string{"action"},
	)

	MalformedTraces = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ramindex_malformed_traces_total",
			Help: "Total number of traces rejected as malformed",
		},
	)

	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ramindex_ledger_size",
			Help: "Number of actions in the ledger",
		},
	)

	LastBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ramindex_last_block",
			Help: "Block number of the last applied trace",
		},
	)

	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ramindex_feed_reconnects_total",
			Help: "Total number of trace feed reconnect attempts",
		},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ramindex_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ramindex_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	HistoryTimeLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ramindex_history_time_limit_exceeded_total",
			Help: "Total number of get_actions scans cut short by the time budget",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ramindex_rate_limit_exceeded_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	CircuitBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ramindex_circuit_breaker_open",
			Help: "Chain API circuit breaker state (1 = open, 0 = closed)",
		},
		[]string{"backend"},
	)
)
