package webhook

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/provider"
)

// NormalizeResult is the canonical event plus the signals the gateway logs.
type NormalizeResult struct {
	Event *domain.WebhookEvent
	// UnknownStatus is set when NativeStatus had no mapping and the event
	// was normalized to pending.
	UnknownStatus bool
	NativeStatus  string
}

// Normalizer turns provider payloads into canonical events. It holds no
// mutable state and never performs I/O.
type Normalizer struct {
	adapters *AdapterRegistry
}

// NewNormalizer creates a normalizer over the registered adapters.
func NewNormalizer(adapters *AdapterRegistry) *Normalizer {
	return &Normalizer{adapters: adapters}
}

// Normalize decodes raw for provider p and maps it onto a canonical event.
// receivedAt is used when the payload carries no trustworthy timestamp. The
// event is not marked as verified.
func (nz *Normalizer) Normalize(p domain.Provider, raw []byte, header http.Header, receivedAt time.Time) (*NormalizeResult, error) {
	adapter, err := nz.adapters.Get(p)
	if err != nil {
		return nil, err
	}
	n, err := adapter.Decode(raw, header)
	if err != nil {
		return nil, err
	}
	return nz.FromNotification(n, receivedAt, false)
}

// FromNotification builds the canonical event from an already decoded
// notification.
func (nz *Normalizer) FromNotification(n *provider.Notification, receivedAt time.Time, signatureValid bool) (*NormalizeResult, error) {
	adapter, err := nz.adapters.Get(n.Provider)
	if err != nil {
		return nil, err
	}

	status, ok := adapter.NormalizeStatus(n)
	unknown := !ok
	if unknown {
		status = domain.StatusPending
	}

	occurredAt := n.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = receivedAt
	}

	event, err := domain.NewWebhookEvent(domain.WebhookEvent{
		Provider:              adapter.Provider(),
		ProviderEventID:       adapter.ExtractEventID(n),
		OrderID:               adapter.ExtractOrderID(n),
		ProviderTransactionID: n.TransactionID,
		Amount:                n.Amount,
		Currency:              n.Currency,
		CanonicalStatus:       status,
		NativeStatus:          n.NativeStatus,
		OccurredAt:            occurredAt.UTC(),
		RawPayload:            n.Body,
		SignatureValid:        signatureValid,
	})
	if err != nil {
		return nil, fmt.Errorf("normalize %s notification: %w", adapter.Provider(), err)
	}

	return &NormalizeResult{
		Event:         event,
		UnknownStatus: unknown,
		NativeStatus:  n.NativeStatus,
	}, nil
}
