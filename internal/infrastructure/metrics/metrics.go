package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/timebank/internal/domain"
)

// Metrics holds all Prometheus metrics. It implements usecase.Recorder.
type Metrics struct {
	// Ledger metrics
	LedgerOperations *prometheus.CounterVec
	LedgerErrors     *prometheus.CounterVec

	// Session metrics
	SessionTransitions *prometheus.CounterVec
	LeaseConflicts     *prometheus.CounterVec
	StalledRecovered   prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// API metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	HTTPInFlight  prometheus.Gauge
	RateLimitHits prometheus.Counter
	AuthFailures  *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LedgerOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_ledger_operations_total",
				Help: "Committed ledger operations by kind",
			},
			[]string{"kind"},
		),
		LedgerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_ledger_errors_total",
				Help: "Failed ledger operations by kind and error type",
			},
			[]string{"kind", "error_type"},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_session_transitions_total",
				Help: "Session status transitions by target status",
			},
			[]string{"to"},
		),
		LeaseConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_lease_conflicts_total",
				Help: "Lease acquisitions refused because of concurrent activity",
			},
			[]string{"status"},
		),
		StalledRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "timebank_stalled_completions_recovered_total",
			Help: "Stalled session completions finished by the sweeper",
		}),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_outbox_events_published_total",
				Help: "Outbox events published by event type",
			},
			[]string{"event_type"},
		),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "timebank_outbox_publish_errors_total",
			Help: "Outbox events that failed to publish",
		}),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timebank_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timebank_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "timebank_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		}),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timebank_auth_failures_total",
				Help: "Authentication failures by reason",
			},
			[]string{"reason"},
		),
	}
}

// LedgerOperation records a ledger write attempt.
func (m *Metrics) LedgerOperation(kind string, err error) {
	if err == nil {
		m.LedgerOperations.WithLabelValues(kind).Inc()
		return
	}
	m.LedgerErrors.WithLabelValues(kind, ErrorType(err)).Inc()
}

// SessionTransition records a committed session status change.
func (m *Metrics) SessionTransition(to domain.SessionStatus) {
	m.SessionTransitions.WithLabelValues(string(to)).Inc()
}

// LeaseConflict records a refused lease acquisition.
func (m *Metrics) LeaseConflict(status string) {
	m.LeaseConflicts.WithLabelValues(status).Inc()
}

// ErrorType buckets an error into a low-cardinality label.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsConflict(err):
		return "conflict"
	case domain.IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}

// Published records an outbox event delivered to the publisher.
func (m *Metrics) Published(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// PublishFailed records an outbox delivery failure.
func (m *Metrics) PublishFailed() {
	m.PublishErrors.Inc()
}

// Recovered records stalled completions finished by the sweeper.
func (m *Metrics) Recovered(n int) {
	m.StalledRecovered.Add(float64(n))
}
