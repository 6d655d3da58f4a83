package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook outcome labels.
const (
	OutcomeAccepted          = "accepted"
	OutcomeDuplicate         = "duplicate"
	OutcomeInvalidSignature  = "invalid_signature"
	OutcomeMalformed         = "malformed"
	OutcomeInvalidTransition = "invalid_transition"
	OutcomeUnknownGateway    = "unknown_gateway"
	OutcomeError             = "error"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Webhook metrics
	WebhooksTotal         *prometheus.CounterVec
	WebhookDuration       *prometheus.HistogramVec
	UnknownStatusTotal    *prometheus.CounterVec
	StatusTransitions     *prometheus.CounterVec
	SignatureVerifyErrors *prometheus.CounterVec

	// Dispatch and retry metrics
	DispatchTotal      *prometheus.CounterVec
	RetryAttemptsTotal *prometheus.CounterVec
	DeadLettersTotal   *prometheus.CounterVec
	RetryTasksPending  prometheus.Gauge
}

// New creates a new Metrics instance registered on the default registry.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics registered on reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "payhook"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Inbound webhook notifications by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "processing_duration_seconds",
				Help:      "Time from receipt to acknowledgement",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"provider"},
		),
		UnknownStatusTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "unknown_status_total",
				Help:      "Native statuses that had no mapping and defaulted to pending",
			},
			[]string{"provider"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "status_transitions_total",
				Help:      "Applied payment status transitions",
			},
			[]string{"from", "to"},
		),
		SignatureVerifyErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "signature_verify_errors_total",
				Help:      "Signature verifications that failed due to an error rather than a mismatch",
			},
			[]string{"provider"},
		),

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "total",
				Help:      "Collaborator dispatches by sink and result",
			},
			[]string{"sink", "result"}, // result: ok, failed, scheduled
		),
		RetryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Retry attempts by task kind and result",
			},
			[]string{"kind", "result"},
		),
		DeadLettersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "dead_letters_total",
				Help:      "Retry tasks moved to the dead-letter table",
			},
			[]string{"kind"},
		),
		RetryTasksPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "tasks_pending",
				Help:      "Retry tasks waiting for their next attempt",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebhook records the outcome of one inbound notification.
func (m *Metrics) RecordWebhook(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(provider, outcome).Inc()
	m.WebhookDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordUnknownStatus counts a native status with no mapping.
func (m *Metrics) RecordUnknownStatus(provider string) {
	if m == nil {
		return
	}
	m.UnknownStatusTotal.WithLabelValues(provider).Inc()
}

// RecordTransition counts an applied status transition.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordSignatureError counts a verification that errored.
func (m *Metrics) RecordSignatureError(provider string) {
	if m == nil {
		return
	}
	m.SignatureVerifyErrors.WithLabelValues(provider).Inc()
}

// RecordDispatch records a collaborator dispatch result.
func (m *Metrics) RecordDispatch(sink, result string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(sink, result).Inc()
}

// RecordRetryAttempt records one retry attempt.
func (m *Metrics) RecordRetryAttempt(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.RetryAttemptsTotal.WithLabelValues(kind, result).Inc()
}

// RecordDeadLetter counts a task moved to the dead-letter table.
func (m *Metrics) RecordDeadLetter(kind string) {
	if m == nil {
		return
	}
	m.DeadLettersTotal.WithLabelValues(kind).Inc()
}

// SetRetryPending reports the number of retry tasks waiting for their next attempt.
func (m *Metrics) SetRetryPending(n int64) {
	if m == nil {
		return
	}
	m.RetryTasksPending.Set(float64(n))
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
