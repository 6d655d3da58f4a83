// Package provider decodes each gateway's wire format and maps its native
// status vocabulary onto canonical payment statuses.
package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
)

// Notification is a decoded provider payload that has not been normalized yet.
type Notification struct {
	Provider domain.Provider
	// Fields holds the flat payload fields, excluding signature fields.
	Fields map[string]string
	// Signature and SignType are the provider-supplied authenticity proof.
	Signature string
	SignType  string

	NativeStatus  string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	// OccurredAt is zero when the provider sends no usable timestamp.
	OccurredAt time.Time

	Body []byte
}

// Field returns a trimmed payload field.
func (n *Notification) Field(key string) string {
	return strings.TrimSpace(n.Fields[key])
}

// Adapter is the per-provider strategy used by the generic webhook pipeline.
type Adapter interface {
	// Provider returns the gateway this adapter handles.
	Provider() domain.Provider
	// Decode parses a raw body. Failures wrap domain.ErrMalformedPayload.
	Decode(body []byte, header http.Header) (*Notification, error)
	// SignatureRequest builds the verification input for n.
	SignatureRequest(n *Notification, header http.Header) signature.Request
	// NormalizeStatus maps the native status; ok is false for unmapped values.
	NormalizeStatus(n *Notification) (status domain.Status, ok bool)
	ExtractOrderID(n *Notification) string
	ExtractEventID(n *Notification) string
	// StatusTable exposes the native status mapping for inspection.
	StatusTable() StatusTable
}

// StatusTable maps upper-cased native statuses to canonical statuses.
type StatusTable map[string]domain.Status

// Lookup maps a native status case-insensitively.
func (t StatusTable) Lookup(native string) (domain.Status, bool) {
	s, ok := t[strings.ToUpper(strings.TrimSpace(native))]
	return s, ok
}

// Adapters returns one adapter per supported provider.
func Adapters() []Adapter {
	return []Adapter{
		NewClickAdapter(),
		NewAlipayAdapter(),
		NewPayPalAdapter(),
		NewPayFortAdapter(),
		NewTwoCheckoutAdapter(),
	}
}

func malformed(p domain.Provider, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrMalformedPayload, p, fmt.Sprintf(format, args...))
}

// decodeFlat decodes a JSON object or a form-encoded body into flat string fields.
// Nested JSON values are kept as their JSON text.
func decodeFlat(p domain.Provider, body []byte, header http.Header) (map[string]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, malformed(p, "empty body")
	}

	if isForm(header) || trimmed[0] != '{' {
		values, err := url.ParseQuery(string(trimmed))
		if err != nil {
			return nil, malformed(p, "parse form: %v", err)
		}
		fields := make(map[string]string, len(values))
		for k, v := range values {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		if len(fields) == 0 {
			return nil, malformed(p, "no fields")
		}
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed(p, "parse json: %v", err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = stringify(v)
	}
	return fields, nil
}

func isForm(header http.Header) bool {
	if header == nil {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// sortedPairs joins non-empty fields as k=v with sep, sorted by key.
func sortedPairs(fields map[string]string, sep string, skip ...string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" || contains(skip, k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, sep)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// parseAmount parses a major-unit decimal amount. Empty means zero.
func parseAmount(p domain.Provider, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, malformed(p, "amount %q", v)
	}
	return d, nil
}

// parseLocalTime parses the first non-empty value in layout at loc.
func parseLocalTime(layout string, loc *time.Location, values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
