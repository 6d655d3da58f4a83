package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderClick       Provider = "click"
	ProviderAlipay      Provider = "alipay"
	ProviderPayPal      Provider = "paypal"
	ProviderPayFort     Provider = "payfort"
	ProviderTwoCheckout Provider = "twocheckout"
)

// AllProviders lists every supported gateway.
var AllProviders = []Provider{
	ProviderClick,
	ProviderAlipay,
	ProviderPayPal,
	ProviderPayFort,
	ProviderTwoCheckout,
}

// ParseProvider parses a gateway name as it appears in the route.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllProviders {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGateway, name)
}

func (p Provider) String() string {
	return string(p)
}

// WebhookEvent is the canonical form of one provider notification.
// Construct it with NewWebhookEvent; fields are not mutated afterwards.
type WebhookEvent struct {
	Provider              Provider        `json:"provider" validate:"required,oneof=click alipay paypal payfort twocheckout"`
	ProviderEventID       string          `json:"providerEventId" validate:"required,max=255"`
	OrderID               string          `json:"orderId" validate:"required,max=255"`
	ProviderTransactionID string          `json:"providerTransactionId" validate:"max=255"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency" validate:"required,len=3,uppercase"`
	CanonicalStatus       Status          `json:"canonicalStatus" validate:"required"`
	NativeStatus          string          `json:"nativeStatus"`
	OccurredAt            time.Time       `json:"occurredAt" validate:"required"`
	RawPayload            []byte          `json:"-"`
	SignatureValid        bool            `json:"signatureValid"`
	Synthetic             bool            `json:"synthetic,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewWebhookEvent validates e and returns it. Validation failures wrap ErrMalformedPayload.
func NewWebhookEvent(e WebhookEvent) (*WebhookEvent, error) {
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !e.CanonicalStatus.IsValid() {
		return nil, fmt.Errorf("%w: canonical status %q", ErrMalformedPayload, e.CanonicalStatus)
	}
	if e.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrMalformedPayload, e.Amount)
	}
	raw := make([]byte, len(e.RawPayload))
	copy(raw, e.RawPayload)
	e.RawPayload = raw
	return &e, nil
}

// IdempotencyKey returns the (provider, providerEventId) key as a single string.
func (e *WebhookEvent) IdempotencyKey() string {
	return IdempotencyKey(e.Provider, e.ProviderEventID)
}

// IdempotencyKey joins a provider and provider event ID.
func IdempotencyKey(p Provider, eventID string) string {
	return string(p) + ":" + eventID
}

// Ack is the uniform acknowledgement returned to every provider.
type Ack struct {
	Success     bool      `json:"success"`
	EventID     string    `json:"eventId"`
	Message     string    `json:"message"`
	ProcessedAt time.Time `json:"processedAt"`
}
