package provider

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
)

var clickStatuses = StatusTable{
	"COMPLETED": domain.StatusCompleted,
	"CONFIRM":   domain.StatusCompleted,
	"1":         domain.StatusCompleted,
	"FAILED":    domain.StatusFailed,
	"PENDING":   domain.StatusPending,
	"PREPARE":   domain.StatusPending,
	"0":         domain.StatusPending,
	"REFUNDED":  domain.StatusRefunded,
	"CANCELLED": domain.StatusCancelled,
}

// clickErrorStatuses overrides the action for specific negative error codes.
// Any other negative code means failed.
var clickErrorStatuses = map[int]domain.Status{
	-9: domain.StatusCancelled,
}

// Click sends sign_time in Tashkent local time.
var tashkent = time.FixedZone("UZT", 5*60*60)

// clickSignedFields is the order Click concatenates fields for signing.
var clickSignedFields = []string{"click_trans_id", "merchant_trans_id", "amount", "action", "error", "sign_time"}

type clickAdapter struct{}

// NewClickAdapter creates the Click adapter.
func NewClickAdapter() Adapter {
	return clickAdapter{}
}

func (clickAdapter) Provider() domain.Provider { return domain.ProviderClick }

func (clickAdapter) StatusTable() StatusTable { return clickStatuses }

func (a clickAdapter) Decode(body []byte, header http.Header) (*Notification, error) {
	fields, err := decodeFlat(domain.ProviderClick, body, header)
	if err != nil {
		return nil, err
	}

	sig := fields["sign_string"]
	delete(fields, "sign_string")

	for _, required := range []string{"click_trans_id", "merchant_trans_id", "action"} {
		if strings.TrimSpace(fields[required]) == "" {
			return nil, malformed(domain.ProviderClick, "missing %s", required)
		}
	}
	if errCode := strings.TrimSpace(fields["error"]); errCode != "" {
		if _, err := strconv.Atoi(errCode); err != nil {
			return nil, malformed(domain.ProviderClick, "error code %q", errCode)
		}
	}

	amount, err := parseAmount(domain.ProviderClick, strings.TrimSpace(fields["amount"]))
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Provider:      domain.ProviderClick,
		Fields:        fields,
		Signature:     sig,
		TransactionID: strings.TrimSpace(fields["click_trans_id"]),
		Amount:        amount,
		Currency:      "UZS",
		Body:          body,
	}
	n.NativeStatus = n.Field("action")
	n.OccurredAt = parseLocalTime(time.DateTime, tashkent, n.Field("sign_time"))
	return n, nil
}

func (clickAdapter) SignatureRequest(n *Notification, header http.Header) signature.Request {
	parts := make([]string, len(clickSignedFields))
	for i, k := range clickSignedFields {
		parts[i] = n.Fields[k]
	}
	return signature.Request{
		Provider:  domain.ProviderClick,
		Message:   []byte(strings.Join(parts, "|")),
		Params:    n.Fields,
		Signature: n.Signature,
		Body:      n.Body,
		Headers:   header,
	}
}

func (clickAdapter) NormalizeStatus(n *Notification) (domain.Status, bool) {
	if code, err := strconv.Atoi(n.Field("error")); err == nil && code < 0 {
		if s, ok := clickErrorStatuses[code]; ok {
			return s, true
		}
		return domain.StatusFailed, true
	}
	return clickStatuses.Lookup(n.NativeStatus)
}

func (clickAdapter) ExtractOrderID(n *Notification) string {
	return n.Field("merchant_trans_id")
}

// ExtractEventID keys on transaction, action and error: Click reuses the
// transaction id across the prepare and complete calls.
func (clickAdapter) ExtractEventID(n *Notification) string {
	errCode := n.Field("error")
	if errCode == "" {
		errCode = "0"
	}
	return n.Field("click_trans_id") + ":" + strings.ToUpper(n.NativeStatus) + ":" + errCode
}
