package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// PayPal transmission headers.
const (
	PayPalHeaderAuthAlgo         = "Paypal-Auth-Algo"
	PayPalHeaderCertURL          = "Paypal-Cert-Url"
	PayPalHeaderTransmissionID   = "Paypal-Transmission-Id"
	PayPalHeaderTransmissionSig  = "Paypal-Transmission-Sig"
	PayPalHeaderTransmissionTime = "Paypal-Transmission-Time"
)

var (
	// ErrPayPalRequest is returned when the verification call itself fails.
	ErrPayPalRequest = fmt.Errorf("paypal verification request failed: %w", ErrUnavailable)
)

// PayPalConfig configures remote webhook signature verification.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	BaseURL      string
	Timeout      time.Duration
}

// PayPalVerifier asks PayPal to verify a webhook's transmission signature.
type PayPalVerifier struct {
	cfg     PayPalConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[bool]
}

// NewPayPalVerifier creates a verifier that authenticates with client credentials.
func NewPayPalVerifier(cfg PayPalConfig) *PayPalVerifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &PayPalVerifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: cc.TokenSource(tokenCtx),
				Base:   http.DefaultTransport,
			},
		},
		breaker: gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
			Name:        "paypal-verify",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// Verify implements Verifier.
func (v *PayPalVerifier) Verify(ctx context.Context, req Request) (bool, error) {
	if v.cfg.WebhookID == "" || v.cfg.ClientID == "" || v.cfg.ClientSecret == "" {
		return false, ErrNotConfigured
	}

	body := verifyRequest{
		AuthAlgo:         req.Headers.Get(PayPalHeaderAuthAlgo),
		CertURL:          req.Headers.Get(PayPalHeaderCertURL),
		TransmissionID:   req.Headers.Get(PayPalHeaderTransmissionID),
		TransmissionSig:  req.Headers.Get(PayPalHeaderTransmissionSig),
		TransmissionTime: req.Headers.Get(PayPalHeaderTransmissionTime),
		WebhookID:        v.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(req.Body),
	}
	if body.TransmissionID == "" || body.TransmissionSig == "" || body.CertURL == "" {
		return false, ErrMissingSignature
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	return v.breaker.Execute(func() (bool, error) {
		return v.call(ctx, body)
	})
}

func (v *PayPalVerifier) call(ctx context.Context, body verifyRequest) (bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("marshal verify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.cfg.BaseURL+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPayPalRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrPayPalRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: status %d: %s", ErrPayPalRequest, resp.StatusCode, msg)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: decode response: %w", ErrPayPalRequest, err)
	}
	return strings.EqualFold(out.VerificationStatus, "SUCCESS"), nil
}
