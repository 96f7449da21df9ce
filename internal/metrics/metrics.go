// Package metrics provides observability for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's counters and gauges. All methods are
// nil-safe so tests can pass a nil *Metrics.
type Metrics struct {
	// Messages received from the broker, by outcome
	// (buffered, malformed, invalid).
	MessagesTotal *prometheus.CounterVec

	// Readings by quality flag.
	ReadingsTotal *prometheus.CounterVec

	// Flush attempts by result (success, failure).
	FlushesTotal *prometheus.CounterVec

	// Rows committed to the measurement sink.
	RowsInserted prometheus.Counter

	// Raw log write failures.
	RawLogFailures prometheus.Counter

	// Current ingestion buffer length. Grows without bound while the
	// store is unreachable, which is exactly why it is exported.
	BufferEntries prometheus.Gauge
}

// New registers and returns the pipeline metrics.
func New() *Metrics {
	return &Metrics{
		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mqpg_messages_total",
			Help: "Inbound broker messages by outcome",
		}, []string{"outcome"}), // outcome: "buffered", "malformed", "invalid"

		ReadingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mqpg_readings_total",
			Help: "Validated readings by quality flag",
		}, []string{"quality"}),

		FlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mqpg_flushes_total",
			Help: "Batch flush attempts by result",
		}, []string{"result"}),

		RowsInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mqpg_rows_inserted_total",
			Help: "Measurement rows committed to the store",
		}),

		RawLogFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mqpg_rawlog_failures_total",
			Help: "Raw append log write failures",
		}),

		BufferEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mqpg_buffer_entries",
			Help: "Entries currently held in the ingestion buffer",
		}),
	}
}

// Message records one inbound message outcome.
func (m *Metrics) Message(outcome string) {
	if m != nil {
		m.MessagesTotal.WithLabelValues(outcome).Inc()
	}
}

// Reading records one classified reading.
func (m *Metrics) Reading(quality string) {
	if m != nil {
		m.ReadingsTotal.WithLabelValues(quality).Inc()
	}
}

// Flush records one flush attempt and, on success, the committed rows.
func (m *Metrics) Flush(result string, rows int) {
	if m != nil {
		m.FlushesTotal.WithLabelValues(result).Inc()
		if result == "success" {
			m.RowsInserted.Add(float64(rows))
		}
	}
}

// RawLogFailure records one swallowed raw log write error.
func (m *Metrics) RawLogFailure() {
	if m != nil {
		m.RawLogFailures.Inc()
	}
}

// Buffer records the buffer length after a mutation.
func (m *Metrics) Buffer(entries int) {
	if m != nil {
		m.BufferEntries.Set(float64(entries))
	}
}
