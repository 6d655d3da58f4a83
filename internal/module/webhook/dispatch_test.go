package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
	"github.com/tradelane/payhook/internal/shared/metrics"
)

type brokenScheduler struct {
	executors map[string]retry.Executor
}

func (s *brokenScheduler) Schedule(context.Context, retry.ScheduleRequest) (*retry.Task, error) {
	return nil, errors.New("retry store unavailable")
}

func (s *brokenScheduler) CancelByOrder(context.Context, string, ...string) (int64, error) {
	return 0, nil
}

func (s *brokenScheduler) RegisterExecutor(kind string, executor retry.Executor) {
	if s.executors == nil {
		s.executors = map[string]retry.Executor{}
	}
	s.executors[kind] = executor
}

func TestDispatcher_LostDispatchIsAudited(t *testing.T) {
	orders := &fakeOrders{fail: func(int) error { return errors.New("orders unavailable") }}
	audit := &memoryAudit{}
	d := NewDispatcher(orders, &fakeNotifier{}, &brokenScheduler{}, nil, audit, zaptest.NewLogger(t), nil, time.Second)

	d.Dispatch(testEvent(t, "o-1", "R1:COMPLETE", domain.StatusCompleted, time.Now().UTC()), 1, 0)
	d.Wait()

	entries := audit.byKind(AuditKindDispatch)
	require.Len(t, entries, 1)
	assert.Equal(t, "o-1", entries[0].OrderID)
	assert.Equal(t, SinkOrderProjection, entries[0].Details["sink"])
	assert.Contains(t, entries[0].Details["schedule_error"], "retry store unavailable")
}

type recordingScheduler struct {
	brokenScheduler
	requests []retry.ScheduleRequest
}

func (s *recordingScheduler) Schedule(_ context.Context, req retry.ScheduleRequest) (*retry.Task, error) {
	s.requests = append(s.requests, req)
	return &retry.Task{Kind: req.Kind, OrderID: req.OrderID}, nil
}

func TestDispatcher_InlineFailureCountsAsFirstAttempt(t *testing.T) {
	sched := &recordingScheduler{}
	notifier := &fakeNotifier{fail: func(int) error { return errors.New("notification service down") }}
	d := NewDispatcher(&fakeOrders{}, notifier, sched, nil, &memoryAudit{}, zaptest.NewLogger(t), nil, time.Second)

	d.Dispatch(testEvent(t, "o-2", "R2:COMPLETE", domain.StatusCompleted, time.Now().UTC()), 1, 4)
	d.Wait()

	require.Len(t, sched.requests, 1)
	req := sched.requests[0]
	assert.Equal(t, SinkNotification, req.Kind)
	assert.Equal(t, "o-2", req.OrderID)
	assert.Equal(t, 4, req.MaxAttempts)
	assert.Equal(t, 1, req.AttemptsMade)
	assert.Contains(t, req.LastError, "notification service down")
}

// slowOrders records deliveries after an optional per-status delay, without
// holding its lock while waiting.
type slowOrders struct {
	mu    sync.Mutex
	delay map[domain.Status]time.Duration
	calls []orderCall
}

func (s *slowOrders) ApplyPaymentStatus(_ context.Context, orderID string, status domain.Status, metadata map[string]string) error {
	time.Sleep(s.delay[status])
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, orderCall{OrderID: orderID, Status: status, Metadata: metadata})
	return nil
}

func (s *slowOrders) statuses(orderID string) []domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Status
	for _, c := range s.calls {
		if c.OrderID == orderID {
			out = append(out, c.Status)
		}
	}
	return out
}

func TestDispatcher_PreservesOrderPerOrder(t *testing.T) {
	orders := &slowOrders{delay: map[domain.Status]time.Duration{domain.StatusCompleted: 100 * time.Millisecond}}
	notifier := &fakeNotifier{}
	d := NewDispatcher(orders, notifier, &recordingScheduler{}, nil, &memoryAudit{}, zaptest.NewLogger(t), nil, time.Second)

	now := time.Now().UTC()
	d.Dispatch(testEvent(t, "o-3", "R3:COMPLETE", domain.StatusCompleted, now), 1, 0)
	d.Dispatch(testEvent(t, "o-3", "R3:REFUND", domain.StatusRefunded, now.Add(time.Minute)), 2, 0)
	d.Dispatch(testEvent(t, "o-4", "R4:CANCEL", domain.StatusCancelled, now), 1, 0)
	d.Wait()

	assert.Equal(t, []domain.Status{domain.StatusCompleted, domain.StatusRefunded}, orders.statuses("o-3"))
	assert.Equal(t, []domain.Status{domain.StatusCancelled}, orders.statuses("o-4"))
	assert.Equal(t, 3, notifier.count())
}

func TestDispatcher_SkipsSupersededOrderProjection(t *testing.T) {
	orders := &slowOrders{delay: map[domain.Status]time.Duration{domain.StatusRefunded: 100 * time.Millisecond}}
	notifier := &fakeNotifier{}
	m := metrics.NewWithRegisterer("test", prometheus.NewRegistry())
	d := NewDispatcher(orders, notifier, &recordingScheduler{}, nil, &memoryAudit{}, zaptest.NewLogger(t), m, time.Second)

	now := time.Now().UTC()
	d.Dispatch(testEvent(t, "o-5", "R5:REFUND", domain.StatusRefunded, now.Add(time.Minute)), 3, 0)
	d.Dispatch(testEvent(t, "o-5", "R5:COMPLETE", domain.StatusCompleted, now), 2, 0)
	d.Wait()

	assert.Equal(t, []domain.Status{domain.StatusRefunded}, orders.statuses("o-5"))
	assert.Equal(t, "3", orders.calls[0].Metadata["version"])
	assert.Equal(t, 2, notifier.count(), "notifications are not superseded")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchTotal.WithLabelValues(SinkOrderProjection, "superseded")))
}

func TestDispatcher_Executors(t *testing.T) {
	sched := &brokenScheduler{}
	notifier := &fakeNotifier{}
	d := NewDispatcher(&fakeOrders{}, notifier, sched, nil, &memoryAudit{}, zaptest.NewLogger(t), nil, time.Second)
	require.Contains(t, sched.executors, SinkOrderProjection)
	require.Contains(t, sched.executors, SinkNotification)

	payload, err := json.Marshal(NewDispatchPayload(testEvent(t, "o-1", "R1:COMPLETE", domain.StatusCompleted, time.Now().UTC())))
	require.NoError(t, err)

	err = sched.executors[SinkNotification](context.Background(), &retry.Task{Kind: SinkNotification, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.count())

	err = sched.executors[SinkNotification](context.Background(), &retry.Task{Kind: SinkNotification, Payload: []byte(`{`)})
	assert.True(t, retry.IsPermanent(err))

	notifier.fail = func(int) error { return domain.ErrPermanentDispatch }
	err = sched.executors[SinkNotification](context.Background(), &retry.Task{Kind: SinkNotification, Payload: payload})
	assert.True(t, retry.IsPermanent(err))

	notifier.fail = func(int) error { return errors.New("timeout") }
	err = sched.executors[SinkNotification](context.Background(), &retry.Task{Kind: SinkNotification, Payload: payload})
	assert.ErrorIs(t, err, domain.ErrCollaboratorDispatch)
	assert.False(t, retry.IsPermanent(err))

	assert.ErrorIs(t, d.Deliver(context.Background(), "ledger", DispatchPayload{}), domain.ErrPermanentDispatch)
}

func TestDispatchPayload_Metadata(t *testing.T) {
	ev := testEvent(t, "o-1", "R1:COMPLETE", domain.StatusCompleted, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	md := NewDispatchPayload(ev).Metadata()

	assert.Equal(t, "twocheckout", md["provider"])
	assert.Equal(t, "R1:COMPLETE", md["event_id"])
	assert.Equal(t, "45.1", md["amount"])
	assert.Equal(t, "EUR", md["currency"])
	assert.Equal(t, "2026-03-01T10:00:00Z", md["occurred_at"])
	assert.NotContains(t, md, "replay")
}
