// Package metrics exposes Prometheus instruments for the pipeline and the
// query API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the pipeline and API instruments.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	FilesLoaded      *prometheus.GaugeVec
	RecordsDropped   *prometheus.CounterVec
	RowsPublished    prometheus.Gauge
	EntitiesPresent  prometheus.Gauge
	MissingEntities  prometheus.Gauge
	LastSuccess      prometheus.Gauge
	Ambiguities      prometheus.Counter
	ForecastFallback prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regionmetrics_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regionmetrics_pipeline_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FilesLoaded: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regionmetrics_files_loaded",
			Help: "Files loaded per category in the last run",
		}, []string{"category"}),
		RecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regionmetrics_records_dropped_total",
			Help: "Records excluded from the snapshot by reason",
		}, []string{"reason"}),
		RowsPublished: f.NewGauge(prometheus.GaugeOpts{
			Name: "regionmetrics_snapshot_rows",
			Help: "Rows in the last published snapshot",
		}),
		EntitiesPresent: f.NewGauge(prometheus.GaugeOpts{
			Name: "regionmetrics_snapshot_regions",
			Help: "Canonical regions present in the last published snapshot",
		}),
		MissingEntities: f.NewGauge(prometheus.GaugeOpts{
			Name: "regionmetrics_snapshot_missing_regions",
			Help: "Canonical regions absent from the last published snapshot",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "regionmetrics_last_success_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		}),
		Ambiguities: f.NewCounter(prometheus.CounterOpts{
			Name: "regionmetrics_ambiguous_names_total",
			Help: "Distinct region texts matching several canonical entities",
		}),
		ForecastFallback: f.NewCounter(prometheus.CounterOpts{
			Name: "regionmetrics_forecast_fallback_total",
			Help: "Projections served by the deterministic fallback",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regionmetrics_http_request_duration_seconds",
			Help:    "Query API latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveRun records the outcome of one pipeline run started at start.
func (m *Metrics) ObserveRun(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// SetFiles records how many files a category contributed.
func (m *Metrics) SetFiles(category string, n int) {
	if m == nil {
		return
	}
	m.FilesLoaded.WithLabelValues(category).Set(float64(n))
}

// AddDropped counts records excluded for reason.
func (m *Metrics) AddDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsDropped.WithLabelValues(reason).Add(float64(n))
}

// AddAmbiguities counts distinct ambiguous texts.
func (m *Metrics) AddAmbiguities(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Ambiguities.Add(float64(n))
}

// Published records the shape of a successfully published snapshot.
func (m *Metrics) Published(at time.Time, rows, present, missing int) {
	if m == nil {
		return
	}
	m.RowsPublished.Set(float64(rows))
	m.EntitiesPresent.Set(float64(present))
	m.MissingEntities.Set(float64(missing))
	m.LastSuccess.Set(float64(at.Unix()))
}

// IncForecastFallback counts a fallback projection.
func (m *Metrics) IncForecastFallback() {
	if m == nil {
		return
	}
	m.ForecastFallback.Inc()
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route, status string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
}
