package provider

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-pay/gopay/alipay"
	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
)

var alipayStatuses = StatusTable{
	"TRADE_SUCCESS":          domain.StatusCompleted,
	"TRADE_FINISHED":         domain.StatusCompleted,
	"TRADE_CLOSED":           domain.StatusCancelled,
	"TRADE_CLOSED_BY_TAOBAO": domain.StatusCancelled,
	"WAIT_BUYER_PAY":         domain.StatusPending,
	"TRADE_PENDING_REFUND":   domain.StatusPending,
	"REFUND_SUCCESS":         domain.StatusRefunded,
}

// Alipay timestamps are China Standard Time.
var chinaStandardTime = time.FixedZone("CST", 8*60*60)

type alipayAdapter struct{}

// NewAlipayAdapter creates the Alipay adapter.
func NewAlipayAdapter() Adapter {
	return alipayAdapter{}
}

func (alipayAdapter) Provider() domain.Provider { return domain.ProviderAlipay }

func (alipayAdapter) StatusTable() StatusTable { return alipayStatuses }

func (a alipayAdapter) Decode(body []byte, header http.Header) (*Notification, error) {
	fields, err := a.decodeFields(body, header)
	if err != nil {
		return nil, err
	}

	sig, signType := fields["sign"], fields["sign_type"]
	delete(fields, "sign")
	delete(fields, "sign_type")

	for _, required := range []string{"out_trade_no", "trade_no", "trade_status"} {
		if strings.TrimSpace(fields[required]) == "" {
			return nil, malformed(domain.ProviderAlipay, "missing %s", required)
		}
	}

	amount, err := parseAmount(domain.ProviderAlipay, strings.TrimSpace(fields["total_amount"]))
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(fields["currency"]))
	if currency == "" {
		currency = "CNY"
	}

	n := &Notification{
		Provider:      domain.ProviderAlipay,
		Fields:        fields,
		Signature:     sig,
		SignType:      signType,
		TransactionID: strings.TrimSpace(fields["trade_no"]),
		Amount:        amount,
		Currency:      currency,
		Body:          body,
	}
	n.NativeStatus = n.Field("trade_status")
	n.OccurredAt = parseLocalTime(time.DateTime, chinaStandardTime,
		n.Field("gmt_refund"), n.Field("gmt_close"), n.Field("gmt_payment"), n.Field("gmt_create"), n.Field("notify_time"))
	return n, nil
}

// decodeFields parses Alipay's form-encoded notify body the way the SDK does;
// JSON bodies are accepted for sandbox relays.
func (alipayAdapter) decodeFields(body []byte, header http.Header) (map[string]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return decodeFlat(domain.ProviderAlipay, body, header)
	}

	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(trimmed))
	if err != nil {
		return nil, malformed(domain.ProviderAlipay, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	bm, err := alipay.ParseNotifyToBodyMap(req)
	if err != nil {
		return nil, malformed(domain.ProviderAlipay, "parse notify: %v", err)
	}
	if len(bm) == 0 {
		return nil, malformed(domain.ProviderAlipay, "no fields")
	}

	fields := make(map[string]string, len(bm))
	for k := range bm {
		fields[k] = bm.Get(k)
	}
	return fields, nil
}

func (alipayAdapter) SignatureRequest(n *Notification, header http.Header) signature.Request {
	return signature.Request{
		Provider:  domain.ProviderAlipay,
		Message:   []byte(sortedPairs(n.Fields, "&")),
		Params:    n.Fields,
		Signature: n.Signature,
		SignType:  n.SignType,
		Body:      n.Body,
		Headers:   header,
	}
}

func (alipayAdapter) NormalizeStatus(n *Notification) (domain.Status, bool) {
	return alipayStatuses.Lookup(n.NativeStatus)
}

func (alipayAdapter) ExtractOrderID(n *Notification) string {
	return n.Field("out_trade_no")
}

func (alipayAdapter) ExtractEventID(n *Notification) string {
	id := n.Field("trade_no") + ":" + strings.ToUpper(n.NativeStatus)
	if refund := n.Field("out_biz_no"); refund != "" {
		id += ":" + refund
	}
	return id
}
