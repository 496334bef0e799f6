package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sighting_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	StepDuration    *prometheus.HistogramVec // labels: step={population,ufo,bigfoot,...}, outcome={success,error}

	// Population table metrics.
	PopulationTables prometheus.Gauge
	PopulationStates prometheus.Gauge

	// Sighting metrics, all labelled by source.
	RowsRead     *prometheus.CounterVec
	RowsWritten  *prometheus.CounterVec
	RowsFiltered *prometheus.CounterVec // labels: source, reason={country,missing_date}
	ParseErrors  *prometheus.CounterVec
	NoDataRows   *prometheus.CounterVec
	LoadErrors   *prometheus.CounterVec // labels: source, sink
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step", "outcome"}),
		PopulationTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "population_source_tables",
			Help:      "Number of raw tables extracted from the population source.",
		}),
		PopulationStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "population_states",
			Help:      "Number of state rows in the population table.",
		}),
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Raw sighting rows read by source.",
		}, []string{"source"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Cleaned sighting rows emitted by source.",
		}, []string{"source"}),
		RowsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_filtered_total",
			Help:      "Raw sighting rows removed by a source filter.",
		}, []string{"source", "reason"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_parse_errors_total",
			Help:      "Rows dropped because a field could not be parsed.",
		}, []string{"source"}),
		NoDataRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_data_rows_total",
			Help:      "Cleaned rows whose population cell is the missing-data sentinel.",
		}, []string{"source"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed writes of a cleaned table to a sink.",
		}, []string{"source", "sink"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.StepDuration,
		m.PopulationTables,
		m.PopulationStates,
		m.RowsRead,
		m.RowsWritten,
		m.RowsFiltered,
		m.ParseErrors,
		m.NoDataRows,
		m.LoadErrors,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	return m, reg
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format, for batch runs that exit before they can be scraped.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
