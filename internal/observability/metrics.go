package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for one
// export run. The run is short-lived, so the final values are also folded
// into the summary log line at exit.
type Metrics struct {
	SituationsSeen  prometheus.Counter
	RecordsMatched  *prometheus.CounterVec // label: stage={operator,category,temporal}
	EventsExported  prometheus.Counter
	MissingCoords   prometheus.Counter
	EventsPublished prometheus.Counter

	FetchDuration  prometheus.Histogram
	ExportDuration prometheus.Histogram
	RunSuccess     prometheus.Gauge
}

// NewMetrics creates and registers all exporter metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SituationsSeen,
		m.RecordsMatched,
		m.EventsExported,
		m.MissingCoords,
		m.EventsPublished,
		m.FetchDuration,
		m.ExportDuration,
		m.RunSuccess,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SituationsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "road_event_etl",
			Name:      "situations_seen_total",
			Help:      "Total situations found in the fetched document.",
		}),
		RecordsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road_event_etl",
			Name:      "records_matched_total",
			Help:      "Records passing each filter stage.",
		}, []string{"stage"}),
		EventsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "road_event_etl",
			Name:      "events_exported_total",
			Help:      "Events written to the output document.",
		}),
		MissingCoords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "road_event_etl",
			Name:      "records_missing_coordinates_total",
			Help:      "Records dropped for lacking a complete coordinate pair.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "road_event_etl",
			Name:      "events_published_total",
			Help:      "Events published to the Kafka sink topic.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "road_event_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of the feed HTTP fetch.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "road_event_etl",
			Name:      "export_duration_seconds",
			Help:      "Duration of writing the output document and report.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "road_event_etl",
			Name:      "run_success",
			Help:      "1 when the last run completed successfully, 0 otherwise.",
		}),
	}
}
