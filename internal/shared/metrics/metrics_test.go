package metrics

import (
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics registers on a private registry to avoid collisions with the default one.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWithRegisterer("test", prometheus.NewRegistry())
}

func TestNewWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer("", reg)
	require.NotNil(t, m)

	m.RecordWebhook("click", OutcomeAccepted, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "payhook_webhook_events_total")
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordHTTPRequest("POST", "/webhooks/:provider", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("POST", "/webhooks/:provider", 404, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/:provider", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/:provider", "4xx")))
}

func TestMetrics_RecordWebhook(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordWebhook("paypal", OutcomeAccepted, 5*time.Millisecond)
	m.RecordWebhook("paypal", OutcomeDuplicate, 5*time.Millisecond)
	m.RecordWebhook("paypal", OutcomeDuplicate, 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("paypal", OutcomeAccepted)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("paypal", OutcomeDuplicate)))
}

func TestMetrics_RetryAndDeadLetter(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRetryAttempt("notification", false)
	m.RecordRetryAttempt("notification", true)
	m.RecordDeadLetter("order_projection")
	m.RecordDispatch("notification", "scheduled")
	m.RecordUnknownStatus("payfort")
	m.RecordTransition("pending", "completed")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetryAttemptsTotal.WithLabelValues("notification", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetryAttemptsTotal.WithLabelValues("notification", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeadLettersTotal.WithLabelValues("order_projection")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchTotal.WithLabelValues("notification", "scheduled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnknownStatusTotal.WithLabelValues("payfort")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusTransitions.WithLabelValues("pending", "completed")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{299, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{499, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, statusCodeToString(tt.code))
		})
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordWebhook("click", OutcomeAccepted, time.Millisecond)
		m.RecordDeadLetter("notification")
		m.SetRetryPending(3)
	})
}
