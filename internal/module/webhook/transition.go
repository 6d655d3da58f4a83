package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/shared/metrics"
)

const defaultCASRetries = 5

// TransitionOutcome describes what Apply did to the projection.
type TransitionOutcome struct {
	Applied        bool
	PreviousStatus domain.Status
	NewStatus      domain.Status
	Version        int64
}

// TransitionEngine is the only writer of payment projections.
type TransitionEngine struct {
	store      ProjectionStore
	logger     *zap.Logger
	metrics    *metrics.Metrics
	casRetries int
}

// NewTransitionEngine creates an engine over store. m may be nil.
func NewTransitionEngine(store ProjectionStore, logger *zap.Logger, m *metrics.Metrics) *TransitionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionEngine{
		store:      store,
		logger:     logger.Named("transition"),
		metrics:    m,
		casRetries: defaultCASRetries,
	}
}

// Apply moves the order's projection to the event's status.
//
// An order without a projection is implicitly pending. Re-applying the
// current status is a successful no-op. Edges outside the state machine,
// and events older than the last applied one, return ErrInvalidTransition
// and leave the projection untouched.
func (e *TransitionEngine) Apply(ctx context.Context, ev *domain.WebhookEvent) (TransitionOutcome, error) {
	for attempt := 0; attempt < e.casRetries; attempt++ {
		current, err := e.store.Get(ctx, ev.OrderID)
		exists := true
		if errors.Is(err, domain.ErrProjectionNotFound) {
			exists = false
			current = &PaymentProjection{OrderID: ev.OrderID, Status: domain.StatusPending}
		} else if err != nil {
			return TransitionOutcome{}, err
		}

		outcome := TransitionOutcome{
			PreviousStatus: current.Status,
			NewStatus:      current.Status,
			Version:        current.Version,
		}

		if current.Status == ev.CanonicalStatus {
			return outcome, nil
		}
		if exists && ev.OccurredAt.Before(current.LastEventAt) {
			return outcome, fmt.Errorf("%w: order %s event %s at %s is older than last applied event at %s",
				domain.ErrInvalidTransition, ev.OrderID, ev.ProviderEventID,
				ev.OccurredAt.Format(time.RFC3339),
				current.LastEventAt.Format(time.RFC3339))
		}
		if !current.Status.CanTransitionTo(ev.CanonicalStatus) {
			return outcome, fmt.Errorf("%w: order %s %s -> %s",
				domain.ErrInvalidTransition, ev.OrderID, current.Status, ev.CanonicalStatus)
		}

		next := &PaymentProjection{
			OrderID:       ev.OrderID,
			Status:        ev.CanonicalStatus,
			Provider:      ev.Provider,
			LastEventID:   ev.ProviderEventID,
			LastEventAt:   ev.OccurredAt,
			TransactionID: ev.ProviderTransactionID,
			Amount:        ev.Amount,
			Currency:      ev.Currency,
		}
		if exists {
			err = e.store.CompareAndSwap(ctx, next, current.Version)
		} else {
			err = e.store.Create(ctx, next)
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			e.logger.Debug("projection changed concurrently, re-reading",
				zap.String("order_id", ev.OrderID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return outcome, err
		}

		e.metrics.RecordTransition(string(current.Status), string(next.Status))
		e.logger.Info("payment status transitioned",
			zap.String("order_id", ev.OrderID),
			zap.String("provider", string(ev.Provider)),
			zap.String("event_id", ev.ProviderEventID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(next.Status)),
			zap.Int64("version", next.Version))

		return TransitionOutcome{
			Applied:        true,
			PreviousStatus: current.Status,
			NewStatus:      next.Status,
			Version:        next.Version,
		}, nil
	}

	return TransitionOutcome{}, fmt.Errorf("apply %s to order %s after %d attempts: %w",
		ev.CanonicalStatus, ev.OrderID, e.casRetries, domain.ErrVersionConflict)
}

// Current returns the order's projection.
func (e *TransitionEngine) Current(ctx context.Context, orderID string) (*PaymentProjection, error) {
	return e.store.Get(ctx, orderID)
}
