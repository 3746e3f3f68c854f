package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	previewTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumlink_preview_total",
			Help: "Total number of chain-join previews by outcome.",
		},
		[]string{"status"},
	)
	materializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumlink_materialize_total",
			Help: "Total number of chain-join materializations by outcome and output format.",
		},
		[]string{"status", "format"},
	)
	materializeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quantumlink_materialize_duration_seconds",
			Help:    "Wall time of materializations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	materializedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantumlink_materialized_rows_total",
			Help: "Total number of rows written by successful materializations.",
		},
	)
	chainLinks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quantumlink_chain_links",
			Help:    "Number of reference links per executed plan.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
	schemaProbeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantumlink_schema_probe_total",
			Help: "Total number of column introspections by outcome.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		previewTotal,
		materializeTotal,
		materializeDurationSeconds,
		materializedRowsTotal,
		chainLinks,
		schemaProbeTotal,
	)
}

func ObservePreview(links int, err error) {
	previewTotal.WithLabelValues(outcome(err)).Inc()
	chainLinks.Observe(float64(links))
}

// ObserveMaterialize records one run. rows < 0 means the engine did not
// report a count.
func ObserveMaterialize(format string, links int, rows int64, elapsed time.Duration, err error) {
	materializeTotal.WithLabelValues(outcome(err), format).Inc()
	chainLinks.Observe(float64(links))
	if err != nil {
		return
	}
	materializeDurationSeconds.Observe(elapsed.Seconds())
	if rows > 0 {
		materializedRowsTotal.Add(float64(rows))
	}
}

func ObserveSchemaProbe(err error) {
	schemaProbeTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
