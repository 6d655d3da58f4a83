package provider

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
)

// TwoCheckoutSignatureHeader carries the signature when it is not in the body.
const TwoCheckoutSignatureHeader = "X-Twocheckout-Signature"

var twocheckoutStatuses = StatusTable{
	"ORDER_CREATED":             domain.StatusPending,
	"PENDING":                   domain.StatusPending,
	"PAYMENT_AUTHORIZED":        domain.StatusCompleted,
	"COMPLETE":                  domain.StatusCompleted,
	"ORDER_COMPLETE":            domain.StatusCompleted,
	"FRAUD_STATUS_CHANGED_FAIL": domain.StatusFailed,
	"PAYMENT_FAILED":            domain.StatusFailed,
	"REFUND_ISSUED":             domain.StatusRefunded,
	"ORDER_CANCELED":            domain.StatusCancelled,
	"ORDER_EXPIRED":             domain.StatusExpired,
}

// twocheckoutSignedFields are hashed as LEN(value)+value in this order.
var twocheckoutSignedFields = []string{"merchantOrderId", "refNo", "type", "amount", "currency"}

type twocheckoutAdapter struct{}

// NewTwoCheckoutAdapter creates the 2Checkout adapter.
func NewTwoCheckoutAdapter() Adapter {
	return twocheckoutAdapter{}
}

func (twocheckoutAdapter) Provider() domain.Provider { return domain.ProviderTwoCheckout }

func (twocheckoutAdapter) StatusTable() StatusTable { return twocheckoutStatuses }

func (twocheckoutAdapter) Decode(body []byte, header http.Header) (*Notification, error) {
	fields, err := decodeFlat(domain.ProviderTwoCheckout, body, header)
	if err != nil {
		return nil, err
	}

	sig := fields["signature"]
	delete(fields, "signature")
	if sig == "" && header != nil {
		sig = header.Get(TwoCheckoutSignatureHeader)
	}

	for _, required := range []string{"merchantOrderId", "refNo", "type", "currency"} {
		if strings.TrimSpace(fields[required]) == "" {
			return nil, malformed(domain.ProviderTwoCheckout, "missing %s", required)
		}
	}

	amount, err := parseAmount(domain.ProviderTwoCheckout, strings.TrimSpace(fields["amount"]))
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Provider:      domain.ProviderTwoCheckout,
		Fields:        fields,
		Signature:     sig,
		TransactionID: strings.TrimSpace(fields["refNo"]),
		Amount:        amount,
		Currency:      strings.ToUpper(strings.TrimSpace(fields["currency"])),
		Body:          body,
	}
	// The payload timestamp is outside the signed fields, so OccurredAt is
	// left to the receipt time.
	n.NativeStatus = n.Field("type")
	return n, nil
}

func (twocheckoutAdapter) SignatureRequest(n *Notification, header http.Header) signature.Request {
	var b strings.Builder
	for _, k := range twocheckoutSignedFields {
		v := n.Fields[k]
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteString(v)
	}
	return signature.Request{
		Provider:  domain.ProviderTwoCheckout,
		Message:   []byte(b.String()),
		Params:    n.Fields,
		Signature: n.Signature,
		Body:      n.Body,
		Headers:   header,
	}
}

func (twocheckoutAdapter) NormalizeStatus(n *Notification) (domain.Status, bool) {
	return twocheckoutStatuses.Lookup(n.NativeStatus)
}

func (twocheckoutAdapter) ExtractOrderID(n *Notification) string {
	return n.Field("merchantOrderId")
}

func (twocheckoutAdapter) ExtractEventID(n *Notification) string {
	return n.Field("refNo") + ":" + strings.ToUpper(n.NativeStatus)
}
