package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerJobReasonDeadlineExceeded = "deadline_exceeded"
	SchedulerJobReasonCanceled         = "canceled"
	SchedulerJobReasonError            = "error"
)

// SchedulerMetrics tracks background job runs.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobTimeouts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	swept       *prometheus.CounterVec
}

func NewSchedulerMetrics(cfg Config) (*SchedulerMetrics, error) {
	return NewSchedulerMetricsWith(prometheus.DefaultRegisterer, cfg)
}

func NewSchedulerMetricsWith(registerer prometheus.Registerer, cfg Config) (*SchedulerMetrics, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "seva"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seva_scheduler_job_runs_total",
			Help:        "Scheduler job runs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seva_scheduler_job_errors_total",
			Help:        "Scheduler job failures by reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seva_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs that hit their deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "seva_scheduler_job_duration_seconds",
			Help:        "Scheduler job duration.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"job"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "seva_pending_sweep_donations_total",
			Help:        "Pending donations re-verified by the sweep, by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
	}

	var err error
	if m.jobRuns, err = register(registerer, m.jobRuns); err != nil {
		return nil, err
	}
	if m.jobErrors, err = register(registerer, m.jobErrors); err != nil {
		return nil, err
	}
	if m.jobTimeouts, err = register(registerer, m.jobTimeouts); err != nil {
		return nil, err
	}
	if m.jobDuration, err = register(registerer, m.jobDuration); err != nil {
		return nil, err
	}
	if m.swept, err = register(registerer, m.swept); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, SchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *SchedulerMetrics) IncSwept(result string) {
	if m == nil {
		return
	}
	m.swept.WithLabelValues(strings.TrimSpace(result)).Inc()
}

func SchedulerJobReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return SchedulerJobReasonCanceled
	default:
		return SchedulerJobReasonError
	}
}
