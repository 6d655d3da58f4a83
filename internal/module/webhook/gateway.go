// Package webhook ingests payment provider notifications: it authenticates
// them, normalizes them onto the canonical payment state machine, applies
// each logical event exactly once and fans the change out to collaborators.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
	"github.com/tradelane/payhook/internal/shared/metrics"
	"github.com/tradelane/payhook/internal/shared/middleware"
)

// Ack messages.
const (
	MessageAccepted          = "accepted"
	MessageUnchanged         = "accepted: status unchanged"
	MessageDuplicate         = "duplicate event ignored"
	MessageInvalidTransition = "accepted: invalid status transition ignored"
	MessageInvalidSignature  = "invalid signature"
	MessageMalformed         = "malformed payload"
	MessageUnknownGateway    = "unknown gateway"
	MessageInternal          = "internal error"
	MessageReplayed          = "replay dispatched"
)

// EventDispatcher delivers applied events to collaborators.
type EventDispatcher interface {
	Dispatch(ev *domain.WebhookEvent, version int64, maxAttempts int)
}

// Gateway runs the webhook pipeline for every provider.
type Gateway struct {
	adapters    *AdapterRegistry
	normalizer  *Normalizer
	verifier    signature.Verifier
	idempotency IdempotencyStore
	engine      *TransitionEngine
	dispatcher  EventDispatcher
	audit       AuditLog
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewGateway creates a gateway. m may be nil.
func NewGateway(
	adapters *AdapterRegistry,
	verifier signature.Verifier,
	idempotency IdempotencyStore,
	engine *TransitionEngine,
	dispatcher EventDispatcher,
	audit AuditLog,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		adapters:    adapters,
		normalizer:  NewNormalizer(adapters),
		verifier:    verifier,
		idempotency: idempotency,
		engine:      engine,
		dispatcher:  dispatcher,
		audit:       audit,
		logger:      logger.Named("gateway"),
		metrics:     m,
		now:         time.Now,
	}
}

// StatusCode maps a Handle error to the HTTP status sent to the provider.
// Signature failures get 200 with success=false in the Ack.
// A rejected signature is understood, so it is acknowledged with 200 and
// success=false.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case !domain.FailsAcknowledgement(err):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownGateway):
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

// Handle processes one raw notification. A nil error means the provider
// should consider the event handled, including duplicates and ignored
// transitions.
func (g *Gateway) Handle(ctx context.Context, providerName string, body []byte, header http.Header) (domain.Ack, error) {
	receivedAt := g.now().UTC()
	ack := domain.Ack{ProcessedAt: receivedAt}

	adapter, err := g.adapters.Resolve(providerName)
	if err != nil {
		g.metrics.RecordWebhook("unknown", metrics.OutcomeUnknownGateway, g.since(receivedAt))
		g.logger.Warn("webhook for unknown gateway", zap.String("provider", providerName))
		ack.Message = MessageUnknownGateway
		return ack, err
	}
	p := adapter.Provider()
	log := g.logger.With(zap.String("provider", string(p)))
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		log = log.With(zap.String("request_id", requestID))
	}

	n, err := adapter.Decode(body, header)
	if err != nil {
		g.metrics.RecordWebhook(string(p), metrics.OutcomeMalformed, g.since(receivedAt))
		log.Warn("malformed webhook payload", zap.Int("body_bytes", len(body)), zap.Error(err))
		ack.Message = MessageMalformed
		return ack, err
	}
	eventID := adapter.ExtractEventID(n)
	ack.EventID = eventID
	log = log.With(zap.String("event_id", eventID), zap.String("order_id", adapter.ExtractOrderID(n)))

	valid, verr := g.verifier.Verify(ctx, adapter.SignatureRequest(n, header))
	if verr != nil {
		g.metrics.RecordSignatureError(string(p))
	}
	if signature.IsUnavailable(verr) {
		g.metrics.RecordWebhook(string(p), metrics.OutcomeError, g.since(receivedAt))
		log.Error("signature verification unavailable", zap.Error(verr))
		ack.Message = MessageInternal
		return ack, fmt.Errorf("verify signature: %w", verr)
	}
	if !valid {
		g.metrics.RecordWebhook(string(p), metrics.OutcomeInvalidSignature, g.since(receivedAt))
		log.Warn("webhook signature rejected", zap.Error(verr))
		reason := "signature mismatch"
		if verr != nil {
			reason = verr.Error()
		}
		_ = g.audit.Record(ctx, &AuditEntry{
			Kind:     AuditKindSecurity,
			Provider: p,
			OrderID:  adapter.ExtractOrderID(n),
			EventID:  eventID,
			Message:  "webhook signature rejected",
			Details:  map[string]string{"reason": reason},
		})
		ack.Message = MessageInvalidSignature
		return ack, domain.ErrInvalidSignature
	}

	res, err := g.normalizer.FromNotification(n, receivedAt, true)
	if err != nil {
		g.metrics.RecordWebhook(string(p), metrics.OutcomeMalformed, g.since(receivedAt))
		log.Warn("webhook payload failed normalization", zap.Error(err))
		ack.Message = MessageMalformed
		return ack, err
	}
	ev := res.Event
	if res.UnknownStatus {
		g.metrics.RecordUnknownStatus(string(p))
		log.Warn("unknown native status, treated as pending",
			zap.String("native_status", res.NativeStatus),
			zap.Error(domain.ErrUnknownNativeStatus))
	}

	firstTime, err := g.idempotency.CheckAndMark(ctx, p, ev.ProviderEventID, ev.CanonicalStatus)
	if err != nil {
		g.metrics.RecordWebhook(string(p), metrics.OutcomeError, g.since(receivedAt))
		log.Error("idempotency check failed", zap.Error(err))
		ack.Message = MessageInternal
		return ack, err
	}
	if !firstTime {
		g.metrics.RecordWebhook(string(p), metrics.OutcomeDuplicate, g.since(receivedAt))
		log.Info("duplicate webhook ignored", zap.Error(domain.ErrDuplicateEvent))
		ack.Success = true
		ack.Message = MessageDuplicate
		return ack, nil
	}

	outcome, err := g.engine.Apply(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		g.metrics.RecordWebhook(string(p), metrics.OutcomeInvalidTransition, g.since(receivedAt))
		log.Warn("status transition rejected",
			zap.String("current_status", string(outcome.PreviousStatus)),
			zap.String("event_status", string(ev.CanonicalStatus)),
			zap.Bool("current_terminal", outcome.PreviousStatus.IsTerminal()),
			zap.Error(err))
		_ = g.audit.Record(ctx, &AuditEntry{
			Kind:     AuditKindConsistency,
			Provider: p,
			OrderID:  ev.OrderID,
			EventID:  ev.ProviderEventID,
			Message:  "status transition rejected",
			Details: map[string]string{
				"current_status": string(outcome.PreviousStatus),
				"event_status":   string(ev.CanonicalStatus),
				"native_status":  ev.NativeStatus,
				"allowed":        joinStatuses(outcome.PreviousStatus.AllowedTransitions()),
				"error":          err.Error(),
			},
		})
		ack.Success = true
		ack.Message = MessageInvalidTransition
		return ack, nil
	case err != nil:
		if rerr := g.idempotency.Release(ctx, p, ev.ProviderEventID); rerr != nil {
			log.Error("failed to release idempotency key", zap.Error(rerr))
		}
		g.metrics.RecordWebhook(string(p), metrics.OutcomeError, g.since(receivedAt))
		log.Error("status transition failed", zap.Error(err))
		ack.Message = MessageInternal
		return ack, err
	}

	g.metrics.RecordWebhook(string(p), metrics.OutcomeAccepted, g.since(receivedAt))
	ack.Success = true
	if !outcome.Applied {
		log.Info("webhook accepted, status unchanged", zap.String("status", string(outcome.NewStatus)))
		ack.Message = MessageUnchanged
		return ack, nil
	}

	g.dispatcher.Dispatch(ev, outcome.Version, 0)
	log.Info("webhook accepted",
		zap.String("from", string(outcome.PreviousStatus)),
		zap.String("to", string(outcome.NewStatus)))
	ack.Message = MessageAccepted
	return ack, nil
}

// Replay re-sends an order's current status to the collaborators. It builds
// a synthetic event from the projection, runs it through idempotency and the
// transition engine, and dispatches it allowing maxRetries retries after the
// first delivery. Zero means a single delivery; a negative value uses the
// scheduler default.
func (g *Gateway) Replay(ctx context.Context, providerName, orderID string, maxRetries int) (domain.Ack, error) {
	now := g.now().UTC()
	ack := domain.Ack{ProcessedAt: now}

	adapter, err := g.adapters.Resolve(providerName)
	if err != nil {
		ack.Message = MessageUnknownGateway
		return ack, err
	}
	p := adapter.Provider()

	proj, err := g.engine.Current(ctx, orderID)
	if err != nil {
		return ack, err
	}
	if proj.Provider != p {
		return ack, fmt.Errorf("%w: order %s has no %s payment", domain.ErrProjectionNotFound, orderID, p)
	}

	ev, err := domain.NewWebhookEvent(domain.WebhookEvent{
		Provider:              p,
		ProviderEventID:       "replay:" + uuid.NewString(),
		OrderID:               orderID,
		ProviderTransactionID: proj.TransactionID,
		Amount:                proj.Amount,
		Currency:              proj.Currency,
		CanonicalStatus:       proj.Status,
		NativeStatus:          "REPLAY",
		OccurredAt:            proj.LastEventAt,
		SignatureValid:        true,
		Synthetic:             true,
	})
	if err != nil {
		return ack, err
	}
	ack.EventID = ev.ProviderEventID

	if _, err := g.idempotency.CheckAndMark(ctx, p, ev.ProviderEventID, ev.CanonicalStatus); err != nil {
		ack.Message = MessageInternal
		return ack, err
	}
	outcome, err := g.engine.Apply(ctx, ev)
	if err != nil {
		ack.Message = MessageInternal
		return ack, err
	}

	maxAttempts := 0
	if maxRetries >= 0 {
		maxAttempts = maxRetries + 1
	}
	g.dispatcher.Dispatch(ev, outcome.Version, maxAttempts)
	_ = g.audit.Record(ctx, &AuditEntry{
		Kind:     AuditKindOperator,
		Provider: p,
		OrderID:  orderID,
		EventID:  ev.ProviderEventID,
		Message:  "manual replay dispatched",
		Details:  map[string]string{"status": string(ev.CanonicalStatus)},
	})
	g.logger.Info("manual replay dispatched",
		zap.String("provider", string(p)),
		zap.String("order_id", orderID),
		zap.String("status", string(ev.CanonicalStatus)),
		zap.Int("max_retries", maxRetries))

	ack.Success = true
	ack.Message = MessageReplayed
	return ack, nil
}

// Projection returns the current projection of an order.
func (g *Gateway) Projection(ctx context.Context, orderID string) (*PaymentProjection, error) {
	return g.engine.Current(ctx, orderID)
}

func (g *Gateway) since(start time.Time) time.Duration {
	return g.now().Sub(start)
}

func joinStatuses(statuses []domain.Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
