// Package collaborator holds HTTP clients for the services that consume
// canonical payment status changes.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

// Config configures one collaborator endpoint.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type client struct {
	name    string
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func newClient(name string, cfg Config, httpClient *http.Client) *client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	threshold := cfg.FailureThreshold
	return &client{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// A rejected request says nothing about the collaborator's health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrPermanentDispatch)
			},
		}),
	}
}

func (c *client) postJSON(ctx context.Context, path string, body any) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.do(ctx, path, body)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

func (c *client) do(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", domain.ErrPermanentDispatch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrPermanentDispatch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: post %s: status %d: %s", domain.ErrPermanentDispatch, path, resp.StatusCode, msg)
	}
}

// OrderProjectionClient pushes canonical statuses to the order service.
type OrderProjectionClient struct {
	c *client
}

// NewOrderProjectionClient creates an order service client. httpClient may be nil.
func NewOrderProjectionClient(cfg Config, httpClient *http.Client) *OrderProjectionClient {
	return &OrderProjectionClient{c: newClient("order-projection", cfg, httpClient)}
}

type paymentStatusRequest struct {
	Status   domain.Status     `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ApplyPaymentStatus sets the payment status of an order.
func (o *OrderProjectionClient) ApplyPaymentStatus(ctx context.Context, orderID string, status domain.Status, metadata map[string]string) error {
	path := "/orders/" + url.PathEscape(orderID) + "/payment-status"
	return o.c.postJSON(ctx, path, paymentStatusRequest{Status: status, Metadata: metadata})
}

// NotificationClient asks the notification service to inform the customer.
type NotificationClient struct {
	c *client
}

// NewNotificationClient creates a notification service client. httpClient may be nil.
func NewNotificationClient(cfg Config, httpClient *http.Client) *NotificationClient {
	return &NotificationClient{c: newClient("notification", cfg, httpClient)}
}

type notifyRequest struct {
	OrderID   string        `json:"orderId"`
	Status    domain.Status `json:"status"`
	EventType string        `json:"eventType"`
}

// Notify requests a payment status notification for an order.
func (n *NotificationClient) Notify(ctx context.Context, orderID string, status domain.Status, eventType string) error {
	return n.c.postJSON(ctx, "/notifications", notifyRequest{OrderID: orderID, Status: status, EventType: eventType})
}

// LogSink stands in for collaborators that are not configured. It accepts
// every dispatch and logs it.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(name string, logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named(name)}
}

// ApplyPaymentStatus logs the status change.
func (s *LogSink) ApplyPaymentStatus(_ context.Context, orderID string, status domain.Status, metadata map[string]string) error {
	s.logger.Info("order projection not configured, status change logged",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
		zap.Any("metadata", metadata))
	return nil
}

// Notify logs the notification request.
func (s *LogSink) Notify(_ context.Context, orderID string, status domain.Status, eventType string) error {
	s.logger.Info("notifier not configured, notification logged",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
		zap.String("event_type", eventType))
	return nil
}
