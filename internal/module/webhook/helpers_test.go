package webhook

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
	"github.com/tradelane/payhook/internal/shared/metrics"
)

const (
	clickSecret       = "click-secret"
	alipaySecret      = "alipay-secret"
	twocheckoutSecret = "2co-secret"
	payfortPhrase     = "payfort-response-phrase"
	paypalGoodSig     = "paypal-transmission-ok"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&IdempotencyRecord{},
		&PaymentProjection{},
		&AuditEntry{},
		&retry.Task{},
		&retry.DeadLetter{},
	))
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type orderCall struct {
	OrderID  string
	Status   domain.Status
	Metadata map[string]string
}

type fakeOrders struct {
	mu    sync.Mutex
	calls []orderCall
	fail  func(n int) error
}

func (f *fakeOrders) ApplyPaymentStatus(_ context.Context, orderID string, status domain.Status, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{OrderID: orderID, Status: status, Metadata: metadata})
	if f.fail != nil {
		return f.fail(len(f.calls))
	}
	return nil
}

func (f *fakeOrders) snapshot() []orderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orderCall(nil), f.calls...)
}

type notifyCall struct {
	OrderID   string
	Status    domain.Status
	EventType string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	fail  func(n int) error
}

func (f *fakeNotifier) Notify(_ context.Context, orderID string, status domain.Status, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{OrderID: orderID, Status: status, EventType: eventType})
	if f.fail != nil {
		return f.fail(len(f.calls))
	}
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []*AuditEntry
}

func (m *memoryAudit) Record(_ context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryAudit) byKind(kind AuditKind) []*AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuditEntry
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeArchiver struct {
	mu     sync.Mutex
	events []*domain.WebhookEvent
}

func (f *fakeArchiver) Archive(_ context.Context, ev *domain.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type harness struct {
	db         *gorm.DB
	clock      *testClock
	metrics    *metrics.Metrics
	orders     *fakeOrders
	notifier   *fakeNotifier
	audit      *memoryAudit
	archiver   *fakeArchiver
	scheduler  *retry.Scheduler
	dispatcher *Dispatcher
	projection ProjectionStore
	gateway    *Gateway
}

func newTestVerifier(t *testing.T) *signature.Registry {
	t.Helper()
	reg := signature.NewRegistry(false, zaptest.NewLogger(t))
	reg.Register(domain.ProviderClick, signature.NewHMACVerifier(clickSecret))
	reg.Register(domain.ProviderAlipay, signature.NewHMACVerifier(alipaySecret))
	reg.Register(domain.ProviderTwoCheckout, signature.NewHMACVerifier(twocheckoutSecret))
	reg.Register(domain.ProviderPayFort, signature.NewPayFortVerifier(payfortPhrase))
	reg.Register(domain.ProviderPayPal, signature.VerifierFunc(func(_ context.Context, req signature.Request) (bool, error) {
		return req.Signature == paypalGoodSig, nil
	}))
	return reg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := newTestDB(t)
	clock := newTestClock()
	m := metrics.NewWithRegisterer("test", prometheus.NewRegistry())

	scheduler := retry.NewScheduler(retry.NewRepository(db), logger, m, &retry.Config{
		MaxAttempts:    3,
		BaseDelay:      10 * time.Second,
		AttemptTimeout: time.Second,
		PollInterval:   time.Hour,
		Lease:          time.Minute,
		BatchSize:      10,
		MaxConcurrent:  4,
	})
	scheduler.SetClock(clock.Now)

	h := &harness{
		db:         db,
		clock:      clock,
		metrics:    m,
		orders:     &fakeOrders{},
		notifier:   &fakeNotifier{},
		audit:      &memoryAudit{},
		archiver:   &fakeArchiver{},
		scheduler:  scheduler,
		projection: NewGormProjectionStore(db),
	}
	h.dispatcher = NewDispatcher(h.orders, h.notifier, scheduler, h.archiver, h.audit, logger, m, time.Second)
	h.gateway = NewGateway(
		NewDefaultAdapterRegistry(),
		newTestVerifier(t),
		NewGormIdempotencyStore(db),
		NewTransitionEngine(h.projection, logger, m),
		h.dispatcher,
		h.audit,
		logger,
		m,
	)
	h.gateway.now = clock.Now
	return h
}

// handle runs a delivery and waits for its background dispatch.
func (h *harness) handle(t *testing.T, provider string, body []byte, header map[string]string) (domain.Ack, error) {
	t.Helper()
	hdr := make(map[string][]string, len(header))
	for k, v := range header {
		hdr[k] = []string{v}
	}
	ack, err := h.gateway.Handle(context.Background(), provider, body, hdr)
	h.dispatcher.Wait()
	return ack, err
}

func (h *harness) status(t *testing.T, orderID string) domain.Status {
	t.Helper()
	p, err := h.projection.Get(context.Background(), orderID)
	if err != nil {
		require.ErrorIs(t, err, domain.ErrProjectionNotFound)
		return ""
	}
	return p.Status
}

func clickPayload(transID, orderID, action string, errCode int, signTime string) []byte {
	fields := map[string]string{
		"click_trans_id":    transID,
		"service_id":        "12",
		"merchant_trans_id": orderID,
		"amount":            "1500.00",
		"action":            action,
		"error":             strconv.Itoa(errCode),
		"sign_time":         signTime,
	}
	msg := strings.Join([]string{
		fields["click_trans_id"], fields["merchant_trans_id"], fields["amount"],
		fields["action"], fields["error"], fields["sign_time"],
	}, "|")
	fields["sign_string"] = signature.SignHMACHex(clickSecret, msg)
	body, _ := json.Marshal(fields)
	return body
}

func alipayPayload(orderID, tradeNo, status, ts string) []byte {
	fields := map[string]string{
		"out_trade_no": orderID,
		"trade_no":     tradeNo,
		"trade_status": status,
		"total_amount": "88.00",
		"gmt_payment":  ts,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fields[k]
	}

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("sign", signature.SignHMACHex(alipaySecret, strings.Join(pairs, "&")))
	form.Set("sign_type", "HMAC-SHA256")
	return []byte(form.Encode())
}

func paypalPayload(eventID, eventType, orderID, updateTime string) []byte {
	return []byte(`{"id":"` + eventID + `","event_type":"` + eventType + `","create_time":"` + updateTime + `",` +
		`"resource":{"id":"CAP-1","custom_id":"` + orderID + `","status":"DONE","update_time":"` + updateTime + `",` +
		`"amount":{"value":"20.00","currency_code":"USD"}}}`)
}

func paypalHeaders(sig string) map[string]string {
	return map[string]string{
		signature.PayPalHeaderTransmissionSig:  sig,
		signature.PayPalHeaderTransmissionID:   "tx-1",
		signature.PayPalHeaderCertURL:          "https://api.paypal.com/cert",
		signature.PayPalHeaderAuthAlgo:         "SHA256withRSA",
		signature.PayPalHeaderTransmissionTime: "2026-03-01T12:00:00Z",
	}
}

func payfortPayload(fortID, orderID, code string) []byte {
	params := map[string]string{
		"fort_id":            fortID,
		"merchant_reference": orderID,
		"response_code":      code,
		"amount":             "10050",
		"currency":           "AED",
		"command":            "PURCHASE",
	}
	params["signature"] = signature.PayFortDigest(payfortPhrase, params)
	body, _ := json.Marshal(params)
	return body
}

func twocheckoutPayload(orderID, refNo, typ string) []byte {
	fields := map[string]string{
		"merchantOrderId": orderID,
		"refNo":           refNo,
		"type":            typ,
		"amount":          "45.10",
		"currency":        "EUR",
		"timestamp":       "2026-03-01T11:00:00Z",
	}
	var b strings.Builder
	for _, k := range []string{"merchantOrderId", "refNo", "type", "amount", "currency"} {
		b.WriteString(strconv.Itoa(len(fields[k])))
		b.WriteString(fields[k])
	}
	fields["signature"] = signature.SignHMACHex(twocheckoutSecret, b.String())
	body, _ := json.Marshal(fields)
	return body
}
