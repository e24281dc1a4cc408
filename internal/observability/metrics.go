package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "studygraph"

// Metrics collects per-run ingestion counters. The process is a batch job,
// so the registry is pushed to a Pushgateway at the end of a run rather than
// scraped. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	rows          *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Rows written to the graph store.",
		}, []string{"entity", "kind"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_attempts_total",
			Help:      "Graph store calls attempted, including retries.",
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Graph store calls retried after a transient error.",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Graph store calls that failed terminally.",
		}, []string{"operation"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one write transaction, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of one run stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"stage", "status"}),
	}
	m.registry.MustRegister(m.rows, m.attempts, m.retries, m.failures, m.batchDuration, m.stageDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AddRows(entity, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(orUnknown(entity), orUnknown(kind)).Add(float64(n))
}

func (m *Metrics) IncStoreAttempt(op string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) IncStoreRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) IncStoreFailure(op string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(orUnknown(op)).Inc()
}

func (m *Metrics) ObserveBatch(kind string, dur time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(orUnknown(kind)).Observe(dur.Seconds())
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(orUnknown(stage), orUnknown(status)).Observe(dur.Seconds())
}

// Push sends the registry to the Pushgateway at url under job, grouped by
// runID. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job, runID string) error {
	if m == nil || strings.TrimSpace(url) == "" {
		return nil
	}
	if job == "" {
		job = "studygraph_ingest"
	}
	p := push.New(url, job).Gatherer(m.registry)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
