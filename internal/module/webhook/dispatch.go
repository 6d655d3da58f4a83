package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
	"github.com/tradelane/payhook/internal/shared/metrics"
)

// Dispatch sinks. Each is also the retry task kind for its failures.
const (
	SinkOrderProjection = "order_projection"
	SinkNotification    = "notification"
)

var sinks = []string{SinkOrderProjection, SinkNotification}

// DispatchPayload is what collaborators receive for one applied status
// change. It is stored as the retry task payload.
type DispatchPayload struct {
	Provider      domain.Provider `json:"provider"`
	EventID       string          `json:"eventId"`
	OrderID       string          `json:"orderId"`
	Status        domain.Status   `json:"status"`
	NativeStatus  string          `json:"nativeStatus"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Synthetic     bool            `json:"synthetic,omitempty"`
	// Version is the projection version the status was applied at.
	Version int64 `json:"version"`
}

// NewDispatchPayload copies the dispatch fields of ev.
func NewDispatchPayload(ev *domain.WebhookEvent) DispatchPayload {
	return DispatchPayload{
		Provider:      ev.Provider,
		EventID:       ev.ProviderEventID,
		OrderID:       ev.OrderID,
		Status:        ev.CanonicalStatus,
		NativeStatus:  ev.NativeStatus,
		TransactionID: ev.ProviderTransactionID,
		Amount:        ev.Amount,
		Currency:      ev.Currency,
		OccurredAt:    ev.OccurredAt,
		Synthetic:     ev.Synthetic,
	}
}

// Metadata returns the order projection metadata for p.
func (p DispatchPayload) Metadata() map[string]string {
	md := map[string]string{
		"provider":       string(p.Provider),
		"event_id":       p.EventID,
		"native_status":  p.NativeStatus,
		"amount":         p.Amount.String(),
		"currency":       p.Currency,
		"occurred_at":    p.OccurredAt.UTC().Format(time.RFC3339),
		"transaction_id": p.TransactionID,
	}
	if p.Version > 0 {
		md["version"] = strconv.FormatInt(p.Version, 10)
	}
	if p.Synthetic {
		md["replay"] = "true"
	}
	return md
}

// Dispatcher fans an applied status change out to the collaborators.
// Delivery runs in the background and never affects the acknowledgement;
// failed deliveries become retry tasks.
type Dispatcher struct {
	orders    OrderProjection
	notifier  Notifier
	scheduler RetryScheduler
	archiver  PayloadArchiver
	audit     AuditLog
	logger    *zap.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration

	mu     sync.Mutex
	queues map[string]*orderQueue
	wg     sync.WaitGroup
}

// orderQueue holds the dispatches of one order still to run, in the order
// Dispatch was called.
type orderQueue struct {
	jobs      []dispatchJob
	delivered int64
}

type dispatchJob struct {
	event       *domain.WebhookEvent
	payload     DispatchPayload
	maxAttempts int
}

// NewDispatcher creates a dispatcher and registers its sinks as retry
// executors. archiver and m may be nil.
func NewDispatcher(
	orders OrderProjection,
	notifier Notifier,
	scheduler RetryScheduler,
	archiver PayloadArchiver,
	audit AuditLog,
	logger *zap.Logger,
	m *metrics.Metrics,
	timeout time.Duration,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		orders:    orders,
		notifier:  notifier,
		scheduler: scheduler,
		archiver:  archiver,
		audit:     audit,
		logger:    logger.Named("dispatch"),
		metrics:   m,
		timeout:   timeout,
		queues:    make(map[string]*orderQueue),
	}
	for _, sink := range sinks {
		scheduler.RegisterExecutor(sink, d.executor(sink))
	}
	return d
}

// Dispatch delivers ev, applied at projection version, to every sink in the
// background. Dispatches of one order run one at a time in call order, and
// an order-projection delivery older than one already made is skipped.
// maxAttempts bounds the deliveries per sink, the inline one included; zero
// uses the scheduler default.
func (d *Dispatcher) Dispatch(ev *domain.WebhookEvent, version int64, maxAttempts int) {
	payload := NewDispatchPayload(ev)
	payload.Version = version
	job := dispatchJob{event: ev, payload: payload, maxAttempts: maxAttempts}

	d.mu.Lock()
	q, busy := d.queues[payload.OrderID]
	if !busy {
		q = &orderQueue{}
		d.queues[payload.OrderID] = q
		d.wg.Add(1)
	}
	q.jobs = append(q.jobs, job)
	d.mu.Unlock()

	if !busy {
		go d.drain(payload.OrderID, q)
	}
}

func (d *Dispatcher) drain(orderID string, q *orderQueue) {
	defer d.wg.Done()
	ctx := context.Background()

	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			delete(d.queues, orderID)
			d.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		stale := job.payload.Version < q.delivered
		if !stale {
			q.delivered = job.payload.Version
		}
		d.mu.Unlock()

		d.run(ctx, job, stale)
	}
}

func (d *Dispatcher) run(ctx context.Context, job dispatchJob, stale bool) {
	p := job.payload
	for _, sink := range sinks {
		if sink == SinkOrderProjection {
			if stale {
				d.metrics.RecordDispatch(sink, "superseded")
				d.logger.Info("superseded order projection dispatch skipped",
					zap.String("order_id", p.OrderID),
					zap.String("event_id", p.EventID),
					zap.Int64("version", p.Version))
				continue
			}
			d.cancelSuperseded(ctx, p.OrderID)
		}
		d.deliverOrSchedule(ctx, sink, p, job.maxAttempts)
	}

	if d.archiver != nil {
		d.archive(ctx, job.event)
	}
}

// cancelSuperseded drops older order-projection retries, which would
// overwrite the newer status.
func (d *Dispatcher) cancelSuperseded(ctx context.Context, orderID string) {
	n, err := d.scheduler.CancelByOrder(ctx, orderID, SinkOrderProjection)
	if err != nil {
		d.logger.Warn("failed to cancel superseded retries",
			zap.String("order_id", orderID),
			zap.Error(err))
		return
	}
	if n > 0 {
		d.logger.Info("superseded retries cancelled",
			zap.String("order_id", orderID),
			zap.Int64("count", n))
	}
}

// Wait blocks until in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliver performs one delivery to sink, bounded by the dispatch timeout.
func (d *Dispatcher) Deliver(ctx context.Context, sink string, p DispatchPayload) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var err error
	switch sink {
	case SinkOrderProjection:
		err = d.orders.ApplyPaymentStatus(ctx, p.OrderID, p.Status, p.Metadata())
	case SinkNotification:
		err = d.notifier.Notify(ctx, p.OrderID, p.Status, p.NativeStatus)
	default:
		return fmt.Errorf("%w: unknown sink %q", domain.ErrPermanentDispatch, sink)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrCollaboratorDispatch, sink, err)
	}
	return nil
}

func (d *Dispatcher) deliverOrSchedule(ctx context.Context, sink string, p DispatchPayload, maxAttempts int) {
	err := d.Deliver(ctx, sink, p)
	if err == nil {
		d.metrics.RecordDispatch(sink, "ok")
		d.logger.Debug("dispatched",
			zap.String("sink", sink),
			zap.String("order_id", p.OrderID),
			zap.String("status", string(p.Status)))
		return
	}

	d.logger.Warn("dispatch failed, scheduling retry",
		zap.String("sink", sink),
		zap.String("order_id", p.OrderID),
		zap.String("event_id", p.EventID),
		zap.Error(err))

	task, serr := d.scheduler.Schedule(ctx, retry.ScheduleRequest{
		Kind:         sink,
		OrderID:      p.OrderID,
		Payload:      p,
		MaxAttempts:  maxAttempts,
		AttemptsMade: 1,
		LastError:    err.Error(),
	})
	if serr != nil {
		d.metrics.RecordDispatch(sink, "lost")
		d.logger.Error("dispatch lost: retry could not be scheduled",
			zap.String("sink", sink),
			zap.String("order_id", p.OrderID),
			zap.String("event_id", p.EventID),
			zap.String("status", string(p.Status)),
			zap.NamedError("dispatch_error", err),
			zap.Error(serr))
		_ = d.audit.Record(ctx, &AuditEntry{
			Kind:     AuditKindDispatch,
			Provider: p.Provider,
			OrderID:  p.OrderID,
			EventID:  p.EventID,
			Message:  "collaborator dispatch failed and retry could not be scheduled",
			Details: map[string]string{
				"sink":           sink,
				"status":         string(p.Status),
				"dispatch_error": err.Error(),
				"schedule_error": serr.Error(),
			},
		})
		return
	}

	d.metrics.RecordDispatch(sink, "scheduled")
	d.logger.Info("retry scheduled for dispatch",
		zap.String("sink", sink),
		zap.String("order_id", p.OrderID),
		zap.String("task_id", task.ID.String()))
}

func (d *Dispatcher) executor(sink string) retry.Executor {
	return func(ctx context.Context, task *retry.Task) error {
		var p DispatchPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return retry.Permanent(fmt.Errorf("decode dispatch payload: %w", err))
		}
		err := d.Deliver(ctx, sink, p)
		if errors.Is(err, domain.ErrPermanentDispatch) {
			return retry.Permanent(err)
		}
		return err
	}
}

func (d *Dispatcher) archive(ctx context.Context, ev *domain.WebhookEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.archiver.Archive(ctx, ev); err != nil {
		d.logger.Warn("failed to archive raw payload",
			zap.String("provider", string(ev.Provider)),
			zap.String("event_id", ev.ProviderEventID),
			zap.Error(err))
	}
}
