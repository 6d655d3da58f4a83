package webhook

import (
	"context"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
)

// OrderProjection receives canonical status changes for an order.
// Implemented by the order service client.
type OrderProjection interface {
	ApplyPaymentStatus(ctx context.Context, orderID string, status domain.Status, metadata map[string]string) error
}

// Notifier asks the notification service to inform the customer.
type Notifier interface {
	Notify(ctx context.Context, orderID string, status domain.Status, eventType string) error
}

// PayloadArchiver stores the raw payload of accepted events.
type PayloadArchiver interface {
	Archive(ctx context.Context, event *domain.WebhookEvent) error
}

// RetryScheduler persists failed dispatches for later re-delivery.
type RetryScheduler interface {
	Schedule(ctx context.Context, req retry.ScheduleRequest) (*retry.Task, error)
	CancelByOrder(ctx context.Context, orderID string, kinds ...string) (int64, error)
	RegisterExecutor(kind string, executor retry.Executor)
}
