package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medgate/internal/domain"
)

// Metrics holds the application-level Prometheus metrics. Protocol-level
// metrics (challenge counts, authority latency) live next to the
// verification client.
type Metrics struct {
	RecordsProcessed *prometheus.CounterVec
	BatchesStarted   prometheus.Counter
}

// New creates and registers all application metrics.
func New() *Metrics {
	return &Metrics{
		RecordsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medgate_records_processed_total",
			Help: "Records processed, labeled by outcome category",
		}, []string{"category"}),
		BatchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medgate_batches_started_total",
			Help: "Validation batches accepted for processing",
		}),
	}
}

// RecordOutcome counts one processed record under its outcome category.
func (m *Metrics) RecordOutcome(category domain.Category) {
	m.RecordsProcessed.WithLabelValues(string(category)).Inc()
}

// BatchStarted counts one accepted batch.
func (m *Metrics) BatchStarted() {
	m.BatchesStarted.Inc()
}
