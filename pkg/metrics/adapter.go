package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AdapterMetrics records call outcomes against upstream ad platforms.
type AdapterMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	reports  prometheus.Counter
}

// NewAdapterMetrics registers the adapter metrics on the provided registerer.
func NewAdapterMetrics(reg prometheus.Registerer) *AdapterMetrics {
	if reg == nil {
		return &AdapterMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adapter_call_duration_seconds",
		Help:    "Duration of upstream ad platform calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform", "operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_call_success",
		Help: "Successful upstream ad platform calls.",
	}, []string{"platform", "operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_call_failure",
		Help: "Failed upstream ad platform calls, labeled by error code.",
	}, []string{"platform", "operation", "code"})
	reports := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reports_generated_total",
		Help: "Aggregated reports produced.",
	})
	reg.MustRegister(duration, success, failure, reports)
	return &AdapterMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		reports:  reports,
	}
}

// ObserveDuration records the duration for one adapter operation.
func (a *AdapterMetrics) ObserveDuration(platform, operation string, duration time.Duration) {
	if a == nil || a.duration == nil {
		return
	}
	a.duration.WithLabelValues(normalizeLabel(platform), normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for one adapter operation.
func (a *AdapterMetrics) IncSuccess(platform, operation string) {
	if a == nil || a.success == nil {
		return
	}
	a.success.WithLabelValues(normalizeLabel(platform), normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter with the typed error code.
func (a *AdapterMetrics) IncFailure(platform, operation, code string) {
	if a == nil || a.failure == nil {
		return
	}
	a.failure.WithLabelValues(normalizeLabel(platform), normalizeLabel(operation), normalizeLabel(code)).Inc()
}

// IncReportGenerated counts one produced report.
func (a *AdapterMetrics) IncReportGenerated() {
	if a == nil || a.reports == nil {
		return
	}
	a.reports.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
