package provider

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
)

var paypalStatuses = StatusTable{
	"PAYMENT.CAPTURE.COMPLETED": domain.StatusCompleted,
	"PAYMENT.CAPTURE.DENIED":    domain.StatusFailed,
	"PAYMENT.CAPTURE.FAILED":    domain.StatusFailed,
	"PAYMENT.CAPTURE.PENDING":   domain.StatusPending,
	"PAYMENT.CAPTURE.REFUNDED":  domain.StatusRefunded,
	"PAYMENT.CAPTURE.REVERSED":  domain.StatusRefunded,
}

type paypalEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	CreateTime string         `json:"create_time"`
	Resource   paypalResource `json:"resource"`
}

type paypalResource struct {
	ID         string `json:"id"`
	CustomID   string `json:"custom_id"`
	InvoiceID  string `json:"invoice_id"`
	Status     string `json:"status"`
	CreateTime string `json:"create_time"`
	UpdateTime string `json:"update_time"`
	Amount     struct {
		Value        string `json:"value"`
		CurrencyCode string `json:"currency_code"`
	} `json:"amount"`
}

type paypalAdapter struct{}

// NewPayPalAdapter creates the PayPal adapter.
func NewPayPalAdapter() Adapter {
	return paypalAdapter{}
}

func (paypalAdapter) Provider() domain.Provider { return domain.ProviderPayPal }

func (paypalAdapter) StatusTable() StatusTable { return paypalStatuses }

func (paypalAdapter) Decode(body []byte, _ http.Header) (*Notification, error) {
	var evt paypalEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&evt); err != nil {
		return nil, malformed(domain.ProviderPayPal, "parse json: %v", err)
	}
	if evt.ID == "" || evt.EventType == "" {
		return nil, malformed(domain.ProviderPayPal, "missing id or event_type")
	}
	if evt.Resource.CustomID == "" && evt.Resource.InvoiceID == "" {
		return nil, malformed(domain.ProviderPayPal, "missing custom_id and invoice_id")
	}

	amount, err := parseAmount(domain.ProviderPayPal, strings.TrimSpace(evt.Resource.Amount.Value))
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Provider: domain.ProviderPayPal,
		Fields: map[string]string{
			"id":                  evt.ID,
			"event_type":          evt.EventType,
			"resource.id":         evt.Resource.ID,
			"resource.custom_id":  evt.Resource.CustomID,
			"resource.invoice_id": evt.Resource.InvoiceID,
			"resource.status":     evt.Resource.Status,
		},
		NativeStatus:  evt.EventType,
		TransactionID: evt.Resource.ID,
		Amount:        amount,
		Currency:      strings.ToUpper(evt.Resource.Amount.CurrencyCode),
		Body:          body,
	}
	for _, ts := range []string{evt.Resource.UpdateTime, evt.Resource.CreateTime, evt.CreateTime} {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			n.OccurredAt = t.UTC()
			break
		}
	}
	return n, nil
}

// SignatureRequest passes the raw body and transmission headers; PayPal
// verifies remotely and signs no canonical message we could recompute.
func (paypalAdapter) SignatureRequest(n *Notification, header http.Header) signature.Request {
	return signature.Request{
		Provider:  domain.ProviderPayPal,
		Params:    n.Fields,
		Signature: header.Get(signature.PayPalHeaderTransmissionSig),
		Body:      n.Body,
		Headers:   header,
	}
}

func (paypalAdapter) NormalizeStatus(n *Notification) (domain.Status, bool) {
	return paypalStatuses.Lookup(n.NativeStatus)
}

func (paypalAdapter) ExtractOrderID(n *Notification) string {
	if id := n.Field("resource.custom_id"); id != "" {
		return id
	}
	return n.Field("resource.invoice_id")
}

func (paypalAdapter) ExtractEventID(n *Notification) string {
	return n.Field("id")
}
