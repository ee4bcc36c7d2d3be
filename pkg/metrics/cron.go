package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// CronJobMetrics records how long scheduled jobs such as the stale payment
// sweep take, how they end and how often a cycle lost the lock race.
type CronJobMetrics struct {
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	contended prometheus.Counter
}

// NewCronJobMetrics registers the cron metrics; a nil registerer yields a
// no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Run time of cron jobs.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job executions, by outcome.",
	}, []string{"job", "result"})
	contended := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cron_lock_contended_total",
		Help: "Cron cycles skipped because another instance held the lock.",
	})
	reg.MustRegister(duration, runs, contended)
	return &CronJobMetrics{duration: duration, runs: runs, contended: contended}
}

// ObserveRun records one execution of job; err decides the result label.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	c.runs.WithLabelValues(job, result).Inc()
}

func (c *CronJobMetrics) IncLockContended() {
	if c == nil || c.contended == nil {
		return
	}
	c.contended.Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
