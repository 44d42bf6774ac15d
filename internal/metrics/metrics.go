// Package metrics defines the Prometheus instrumentation for the
// vulnerability-management pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	// JobRunsTotal tracks scheduled job runs by job and status.
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_job_runs_total",
			Help: "Total number of scheduled job runs by job and status",
		},
		[]string{"job", "status"},
	)

	// JobRunDuration tracks scheduled job run duration.
	JobRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vm_job_run_duration_seconds",
			Help:    "Scheduled job run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"job"},
	)

	// QueueClaimsTotal tracks import queue claims by outcome.
	QueueClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_queue_claims_total",
			Help: "Total number of import queue claims by outcome",
		},
		[]string{"outcome"},
	)
)

// Scanner gateway metrics
var (
	// ScannerRequestsTotal tracks upstream scanner requests by endpoint
	// and status.
	ScannerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_scanner_requests_total",
			Help: "Total number of upstream scanner requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// ScannerRequestDuration tracks upstream scanner request duration.
	ScannerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vm_scanner_request_duration_seconds",
			Help:    "Upstream scanner request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	// ScannerTokenCacheTotal tracks token cache lookups by result.
	ScannerTokenCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_scanner_token_cache_total",
			Help: "Total number of scanner token cache lookups by result",
		},
		[]string{"result"},
	)
)

// Sync metrics
var (
	// ScansReconciledTotal tracks scan reconciliation outcomes per tenant.
	ScansReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_scans_reconciled_total",
			Help: "Total number of reconciled scans by tenant and outcome",
		},
		[]string{"organisation_id", "outcome"},
	)

	// VulnerabilitiesSyncedTotal tracks vulnerabilities merged per tenant.
	VulnerabilitiesSyncedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_vulnerabilities_synced_total",
			Help: "Total number of vulnerabilities merged by tenant",
		},
		[]string{"organisation_id"},
	)
)
