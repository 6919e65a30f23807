package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK              = "ok"
	outcomeConnectionError = "connection_error"
	outcomeExecutionError  = "execution_error"
	outcomeRejected        = "rejected"
)

var (
	// sourceQueriesTotal counts executed queries per source and outcome.
	sourceQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_source_queries_total",
			Help: "Total number of queries issued to each source, by outcome",
		},
		[]string{"source", "outcome"},
	)

	// sourceQueryDuration tracks connect+query latency per source.
	sourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_source_query_duration_seconds",
			Help:    "Latency of a single source query including connect and close",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
)

func observe(source, outcome string, start time.Time) {
	sourceQueriesTotal.WithLabelValues(source, outcome).Inc()
	sourceQueryDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
