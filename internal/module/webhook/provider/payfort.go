package provider

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
)

// payfortStatuses maps full five-digit response codes.
var payfortStatuses = StatusTable{
	"00000": domain.StatusCompleted,
	"14000": domain.StatusCompleted,
	"02000": domain.StatusPending,
	"20064": domain.StatusPending,
	"00072": domain.StatusCancelled,
}

// payfortStatusPrefixes maps the two-digit status part of a response code
// when no full code matches.
var payfortStatusPrefixes = map[string]domain.Status{
	"13": domain.StatusFailed,
	"14": domain.StatusFailed,
	"19": domain.StatusExpired,
}

// payfortExponents lists ISO 4217 currencies whose minor unit is not 2 digits.
var payfortExponents = map[string]int32{
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"JPY": 0,
}

type payfortAdapter struct{}

// NewPayFortAdapter creates the PayFort adapter.
func NewPayFortAdapter() Adapter {
	return payfortAdapter{}
}

func (payfortAdapter) Provider() domain.Provider { return domain.ProviderPayFort }

// StatusTable returns the full-code table merged with prefix rules written as "13xxx".
func (payfortAdapter) StatusTable() StatusTable {
	t := make(StatusTable, len(payfortStatuses)+len(payfortStatusPrefixes))
	for k, v := range payfortStatuses {
		t[k] = v
	}
	for prefix, v := range payfortStatusPrefixes {
		t[prefix+"XXX"] = v
	}
	return t
}

func (payfortAdapter) Decode(body []byte, header http.Header) (*Notification, error) {
	fields, err := decodeFlat(domain.ProviderPayFort, body, header)
	if err != nil {
		return nil, err
	}

	sig := fields["signature"]
	delete(fields, "signature")

	for _, required := range []string{"merchant_reference", "response_code", "currency"} {
		if strings.TrimSpace(fields[required]) == "" {
			return nil, malformed(domain.ProviderPayFort, "missing %s", required)
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(fields["currency"]))
	amount := decimal.Zero
	if raw := strings.TrimSpace(fields["amount"]); raw != "" {
		minor, err := decimal.NewFromString(raw)
		if err != nil || !minor.Equal(minor.Truncate(0)) {
			return nil, malformed(domain.ProviderPayFort, "amount %q is not minor units", raw)
		}
		exp, ok := payfortExponents[currency]
		if !ok {
			exp = 2
		}
		amount = minor.Shift(-exp)
	}

	n := &Notification{
		Provider:      domain.ProviderPayFort,
		Fields:        fields,
		Signature:     sig,
		TransactionID: strings.TrimSpace(fields["fort_id"]),
		Amount:        amount,
		Currency:      currency,
		Body:          body,
	}
	n.NativeStatus = n.Field("response_code")
	return n, nil
}

func (payfortAdapter) SignatureRequest(n *Notification, header http.Header) signature.Request {
	return signature.Request{
		Provider:  domain.ProviderPayFort,
		Params:    n.Fields,
		Signature: n.Signature,
		Body:      n.Body,
		Headers:   header,
	}
}

func (payfortAdapter) NormalizeStatus(n *Notification) (domain.Status, bool) {
	code := n.NativeStatus
	if s, ok := payfortStatuses.Lookup(code); ok {
		return s, true
	}
	if len(code) == 5 {
		if s, ok := payfortStatusPrefixes[code[:2]]; ok {
			return s, true
		}
	}
	return "", false
}

func (payfortAdapter) ExtractOrderID(n *Notification) string {
	return n.Field("merchant_reference")
}

func (payfortAdapter) ExtractEventID(n *Notification) string {
	ref := n.Field("fort_id")
	if ref == "" {
		ref = n.Field("merchant_reference")
	}
	return ref + ":" + n.NativeStatus
}
