package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for MessagesTotal.
const (
	OutcomeProcessed   = "processed"
	OutcomeDropped     = "dropped"
	OutcomeRetried     = "retried"
	OutcomeDeadLetters = "dead_lettered"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_messages_total",
			Help: "Messages handled per subscription and outcome",
		},
		[]string{"subscription", "outcome"},
	)

	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_dead_letters_total",
			Help: "Messages routed to a dead-letter topic",
		},
		[]string{"topic"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fulfillment_handler_duration_seconds",
			Help:    "Duration of one handler invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subscription"},
	)

	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_cache_ops_total",
			Help: "Cache operations per op and result",
		},
		[]string{"op", "result"},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_sweep_runs_total",
			Help: "Scheduled sweep ticks per sweep and result",
		},
		[]string{"sweep", "result"},
	)

	StockCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_stock_calls_total",
			Help: "Stock decrement calls per result",
		},
		[]string{"result"},
	)
)
