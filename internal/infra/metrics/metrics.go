// Package metrics provides Prometheus metrics for ytdlhost.
// Counters, gauges and histograms for task lifecycle, quota admission,
// tag post-processing and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksSubmitted tracks admitted tasks by type.
var TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "tasks_submitted_total",
	Help:      "Total admitted tasks.",
}, []string{"type"})

// TasksCompleted tracks completed tasks by type.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
}, []string{"type"})

// TasksFailed tracks failed tasks by type and reason.
var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "tasks_failed_total",
	Help:      "Total failed tasks.",
}, []string{"type", "reason"})

// TasksActive tracks tasks that hold a quota reservation.
var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ytdlhost",
	Name:      "tasks_active",
	Help:      "Number of admitted tasks not yet terminal.",
})

// DownloadDuration tracks engine run time per task type.
var DownloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ytdlhost",
	Name:      "download_duration_seconds",
	Help:      "Download engine run time in seconds.",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
}, []string{"type"})

// ─── Quota ──────────────────────────────────────────────────────────────────

// AdmissionDenied tracks rejected submissions by reason.
var AdmissionDenied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "admission_denied_total",
	Help:      "Total submissions rejected by the quota ledger.",
}, []string{"reason"})

// QuotaReservedBytes tracks the ledger's outstanding reserved budget.
var QuotaReservedBytes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ytdlhost",
	Name:      "quota_reserved_bytes",
	Help:      "Bytes currently reserved by admitted tasks.",
})

// ─── Post-processing ────────────────────────────────────────────────────────

// TagRewrites tracks ID3 rewrite outcomes (written, skipped, failed).
var TagRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "tag_rewrites_total",
	Help:      "ID3 tag rewrite outcomes.",
}, []string{"outcome"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ytdlhost",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})

// ─── Cleanup ────────────────────────────────────────────────────────────────

// TasksPurged tracks tasks removed by retention cleanup.
var TasksPurged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ytdlhost",
	Name:      "tasks_purged_total",
	Help:      "Total terminal tasks removed by retention cleanup.",
})
