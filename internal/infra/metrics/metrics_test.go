package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestTaskCounters(t *testing.T) {
	TasksSubmitted.WithLabelValues("get_audio").Inc()
	TasksCompleted.WithLabelValues("get_audio").Inc()
	TasksFailed.WithLabelValues("get_video", "timeout").Inc()
	TasksActive.Set(3)
	DownloadDuration.WithLabelValues("get_audio").Observe(12.5)

	names := gatheredNames(t)
	expected := []string{
		"ytdlhost_tasks_submitted_total",
		"ytdlhost_tasks_completed_total",
		"ytdlhost_tasks_failed_total",
		"ytdlhost_tasks_active",
		"ytdlhost_download_duration_seconds",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestQuotaMetrics(t *testing.T) {
	AdmissionDenied.WithLabelValues("global_cap").Inc()
	QuotaReservedBytes.Set(64 << 20)

	names := gatheredNames(t)
	if !names["ytdlhost_admission_denied_total"] {
		t.Error("ytdlhost_admission_denied_total not found")
	}
	if !names["ytdlhost_quota_reserved_bytes"] {
		t.Error("ytdlhost_quota_reserved_bytes not found")
	}
}

func TestTagAndHealthMetrics(t *testing.T) {
	TagRewrites.WithLabelValues("written").Inc()
	HealthCheckStatus.WithLabelValues("sqlite").Set(1)
	HealthRecoveries.WithLabelValues("download_dir").Inc()
	TasksPurged.Add(2)

	names := gatheredNames(t)
	for _, name := range []string{
		"ytdlhost_tag_rewrites_total",
		"ytdlhost_health_check_status",
		"ytdlhost_health_recoveries_total",
		"ytdlhost_tasks_purged_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestAllMetricsGatherable(t *testing.T) {
	TasksActive.Set(0)
	names := gatheredNames(t)

	count := 0
	for name := range names {
		if strings.HasPrefix(name, "ytdlhost_") {
			count++
		}
	}
	// Vec metrics only appear once a label set is used; the plain ones always do.
	if count < 3 {
		t.Errorf("expected at least 3 ytdlhost_ metrics, got %d", count)
	}
}
