package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write-path and read-path instruments, registered on the default registry
// and exposed via promhttp in main.
var (
	metricBatchesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statka_ledger_batches_total",
		Help: "Ledger batch submissions by outcome.",
	}, []string{"outcome"})

	metricRecordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statka_ledger_records_written_total",
		Help: "Ledger rows inserted or replaced by the write pipeline.",
	})

	metricBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "statka_ledger_batch_duration_seconds",
		Help:    "End-to-end duration of ledger batch submissions.",
		Buckets: prometheus.DefBuckets,
	})

	metricRollupQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statka_rollup_queries_total",
		Help: "Rollup queries by cache outcome.",
	}, []string{"cache"})

	metricAuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statka_audit_write_failures_total",
		Help: "Audit log writes that were swallowed after failing.",
	})
)
