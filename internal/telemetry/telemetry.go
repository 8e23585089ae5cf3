// Package telemetry exports Prometheus metrics for checks, scan batches,
// replacements and sweeps.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

const namespace = "link_sweeper"

// Metrics holds the link sweeper collectors.
type Metrics struct {
	ChecksTotal       *prometheus.CounterVec
	CheckDuration     prometheus.Histogram
	BatchesTotal      *prometheus.CounterVec
	BatchItems        *prometheus.HistogramVec
	BatchDuration     *prometheus.HistogramVec
	ReplacedDocuments *prometheus.CounterVec
	SweepsTotal       *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
}

// Provider records observations from the sweeper components.
type Provider struct {
	Metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewProvider registers the collectors with reg. A nil reg uses a fresh
// registry that also carries the Go runtime and process collectors.
func NewProvider(reg *prometheus.Registry) *Provider {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Provider{Metrics: initMetrics(promauto.With(reg)), gatherer: reg}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initCheckMetrics(f, m)
	initBatchMetrics(f, m)
	initReplaceMetrics(f, m)
	return m
}

func initCheckMetrics(f promauto.Factory, m *Metrics) {
	m.ChecksTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checks_total",
		Help:      "Link checks by resulting status",
	}, []string{"status"})

	m.CheckDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "check_duration_seconds",
		Help:      "Wall time of one HEAD/GET probe",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
}

func initBatchMetrics(f promauto.Factory, m *Metrics) {
	m.BatchesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_batches_total",
		Help:      "Completed scan batches by phase",
	}, []string{"phase"})

	m.BatchItems = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_batch_items",
		Help:      "Documents or URLs processed per batch",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 500},
	}, []string{"phase"})

	m.BatchDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_batch_duration_seconds",
		Help:      "Wall time of one scan batch",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"phase"})

	m.SweepsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Full sweeps by result",
	}, []string{"result"})

	m.SweepDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of a full sweep",
		Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
	})
}

func initReplaceMetrics(f promauto.Factory, m *Metrics) {
	m.ReplacedDocuments = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replaced_documents_total",
		Help:      "Documents rewritten by replacements or restored by undo",
	}, []string{"action"})
}

// ObserveCheck records one link check.
func (p *Provider) ObserveCheck(status string, d time.Duration) {
	p.Metrics.ChecksTotal.WithLabelValues(status).Inc()
	p.Metrics.CheckDuration.Observe(d.Seconds())
}

// ObserveBatch records one scan batch.
func (p *Provider) ObserveBatch(phase domain.ScanPhase, items int, d time.Duration) {
	label := string(phase)
	p.Metrics.BatchesTotal.WithLabelValues(label).Inc()
	p.Metrics.BatchItems.WithLabelValues(label).Observe(float64(items))
	p.Metrics.BatchDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveReplacement records documents touched by an execute or an undo.
func (p *Provider) ObserveReplacement(action string, documents int) {
	p.Metrics.ReplacedDocuments.WithLabelValues(action).Add(float64(documents))
}

// ObserveSweep records a finished full sweep.
func (p *Provider) ObserveSweep(result string, d time.Duration) {
	p.Metrics.SweepsTotal.WithLabelValues(result).Inc()
	p.Metrics.SweepDuration.Observe(d.Seconds())
}
