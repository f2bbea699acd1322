package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document registry.
// Tracks lifecycle transitions and per-operation durations.
type Metrics struct {
	DocumentsCreated     prometheus.Counter
	SignaturesRecorded   prometheus.Counter
	DocumentsFullySigned prometheus.Counter
	DocumentsRevoked     prometheus.Counter
	OperationDuration    *prometheus.HistogramVec
}

// New creates a new Metrics instance with all document metrics registered.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notary_documents_created_total",
			Help: "Total number of documents registered",
		}),
		SignaturesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notary_signatures_recorded_total",
			Help: "Total number of signatures recorded",
		}),
		DocumentsFullySigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notary_documents_fully_signed_total",
			Help: "Total number of documents that reached FULLY_SIGNED",
		}),
		DocumentsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notary_documents_revoked_total",
			Help: "Total number of documents revoked",
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notary_document_operation_duration_seconds",
			Help:    "Duration of document registry operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.DocumentsCreated.Inc()
}

func (m *Metrics) IncrementSigned() {
	m.SignaturesRecorded.Inc()
}

func (m *Metrics) IncrementFullySigned() {
	m.DocumentsFullySigned.Inc()
}

func (m *Metrics) IncrementRevoked() {
	m.DocumentsRevoked.Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
