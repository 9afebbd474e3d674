package posting

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// Metrics counts postings by operation and outcome.
type Metrics struct {
	postings *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the posting collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_postings_total",
			Help: "Document operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_posting_duration_seconds",
			Help:    "Duration of document operations including the transaction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.postings, m.duration)
	}
	return m
}

func (m *Metrics) observe(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	var txErr *shared.TransactionError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrDocumentBusy):
		return "busy"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, shared.ErrDuplicate):
		return "duplicate"
	case errors.As(err, &txErr):
		return "rolled_back"
	default:
		return "error"
	}
}
