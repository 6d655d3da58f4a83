package collaborator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

func TestOrderProjectionClient_ApplyPaymentStatus(t *testing.T) {
	var got paymentStatusRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewOrderProjectionClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, nil)
	err := c.ApplyPaymentStatus(context.Background(), "order/42", domain.StatusCompleted, map[string]string{"provider": "click"})
	require.NoError(t, err)

	assert.Equal(t, "/orders/order%2F42/payment-status", path)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "click", got.Metadata["provider"])
}

func TestNotificationClient_Notify(t *testing.T) {
	var got notifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewNotificationClient(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, c.Notify(context.Background(), "order-1", domain.StatusRefunded, "REFUND_SUCCESS"))

	assert.Equal(t, notifyRequest{OrderID: "order-1", Status: domain.StatusRefunded, EventType: "REFUND_SUCCESS"}, got)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"server error is transient", http.StatusBadGateway, false},
		{"rate limit is transient", http.StatusTooManyRequests, false},
		{"request timeout is transient", http.StatusRequestTimeout, false},
		{"not found is permanent", http.StatusNotFound, true},
		{"unprocessable is permanent", http.StatusUnprocessableEntity, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewNotificationClient(Config{BaseURL: srv.URL}, nil)
			err := c.Notify(context.Background(), "o", domain.StatusFailed, "FAILED")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, domain.ErrPermanentDispatch))
		})
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOrderProjectionClient(Config{BaseURL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.Error(t, c.ApplyPaymentStatus(ctx, "o", domain.StatusCompleted, nil))
	}
	err := c.ApplyPaymentStatus(ctx, "o", domain.StatusCompleted, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_PermanentErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOrderProjectionClient(Config{BaseURL: srv.URL, FailureThreshold: 1}, nil)
	for i := 0; i < 3; i++ {
		err := c.ApplyPaymentStatus(context.Background(), "o", domain.StatusCompleted, nil)
		assert.ErrorIs(t, err, domain.ErrPermanentDispatch)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestLogSink(t *testing.T) {
	s := NewLogSink("collaborators", zaptest.NewLogger(t))
	assert.NoError(t, s.ApplyPaymentStatus(context.Background(), "o", domain.StatusCompleted, nil))
	assert.NoError(t, s.Notify(context.Background(), "o", domain.StatusCompleted, "CONFIRM"))
}
