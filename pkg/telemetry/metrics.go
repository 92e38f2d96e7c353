package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Forgeplane.
type Metrics struct {
	config MetricsConfig

	// Workflow metrics
	workflowsStarted   *prometheus.CounterVec
	workflowsCompleted *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	stepDuration       *prometheus.HistogramVec

	// Stack metrics
	stackOperations    *prometheus.CounterVec
	stackApplyDuration *prometheus.HistogramVec
	stackDestroys      *prometheus.CounterVec

	// Platform metrics
	platformCalls  *prometheus.CounterVec
	platformErrors *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// System metrics
	activeWorkflows prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		workflowsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_started_total",
				Help:      "Total number of project-creation workflows started",
			},
			[]string{"platform"},
		),
		workflowsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_completed_total",
				Help:      "Total number of project-creation workflows completed",
			},
			[]string{"status"},
		),
		workflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Duration of project-creation workflows in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_step_duration_seconds",
				Help:      "Duration of individual workflow steps in seconds",
				Buckets:   buckets,
			},
			[]string{"step", "status"},
		),

		stackOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stack_operations_total",
				Help:      "Total number of infrastructure stack operations",
			},
			[]string{"operation", "status"},
		),
		stackApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stack_apply_duration_seconds",
				Help:      "Duration of stack apply operations in seconds",
				Buckets:   buckets,
			},
			[]string{"resource_type"},
		),
		stackDestroys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stack_destroys_total",
				Help:      "Total number of compensating stack destroys",
			},
			[]string{"status"},
		),

		platformCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "platform_calls_total",
				Help:      "Total number of source-control platform calls",
			},
			[]string{"platform", "operation"},
		),
		platformErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "platform_errors_total",
				Help:      "Total number of source-control platform errors",
			},
			[]string{"platform", "operation"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),

		activeWorkflows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workflows",
				Help:      "Current number of in-progress workflows",
			},
		),
	}

	registry.MustRegister(
		m.workflowsStarted,
		m.workflowsCompleted,
		m.workflowDuration,
		m.stepDuration,
		m.stackOperations,
		m.stackApplyDuration,
		m.stackDestroys,
		m.platformCalls,
		m.platformErrors,
		m.errorsByKind,
		m.activeWorkflows,
	)

	return m, nil
}

// Workflow Metrics

// RecordWorkflowStarted increments the counter for started workflows.
func (m *Metrics) RecordWorkflowStarted(platform string) {
	if m.workflowsStarted == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(platform).Inc()
	m.activeWorkflows.Inc()
}

// RecordWorkflowCompleted records a completed workflow with status and duration.
func (m *Metrics) RecordWorkflowCompleted(status string, duration time.Duration) {
	if m.workflowsCompleted == nil {
		return
	}
	m.workflowsCompleted.WithLabelValues(status).Inc()
	m.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeWorkflows.Dec()
}

// RecordStepDuration records the duration of a single workflow step.
func (m *Metrics) RecordStepDuration(step, status string, duration time.Duration) {
	if m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

// Stack Metrics

// RecordStackOperation records an infrastructure stack operation.
func (m *Metrics) RecordStackOperation(operation, status string) {
	if m.stackOperations == nil {
		return
	}
	m.stackOperations.WithLabelValues(operation, status).Inc()
}

// RecordStackApply records the duration of a stack apply.
func (m *Metrics) RecordStackApply(resourceType string, duration time.Duration) {
	if m.stackApplyDuration == nil {
		return
	}
	m.stackApplyDuration.WithLabelValues(resourceType).Observe(duration.Seconds())
}

// RecordStackDestroy records a compensating destroy attempt.
func (m *Metrics) RecordStackDestroy(status string) {
	if m.stackDestroys == nil {
		return
	}
	m.stackDestroys.WithLabelValues(status).Inc()
}

// Platform Metrics

// RecordPlatformCall records a source-control platform call.
func (m *Metrics) RecordPlatformCall(platform, operation string) {
	if m.platformCalls == nil {
		return
	}
	m.platformCalls.WithLabelValues(platform, operation).Inc()
}

// RecordPlatformError records a source-control platform error.
func (m *Metrics) RecordPlatformError(platform, operation string) {
	if m.platformErrors == nil {
		return
	}
	m.platformErrors.WithLabelValues(platform, operation).Inc()
}

// Error Metrics

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts a standalone HTTP server to expose metrics.
// Not needed when the metrics handler is mounted on the main API router.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
