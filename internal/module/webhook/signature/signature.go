// Package signature authenticates inbound webhook payloads per provider.
package signature

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

var (
	// ErrNotConfigured is returned when a provider has no verification secret.
	ErrNotConfigured = errors.New("signature verification not configured")
	// ErrMissingSignature is returned when the payload carries no signature.
	ErrMissingSignature = errors.New("missing signature")
	// ErrUnavailable is returned when verification could not run, e.g. the
	// provider's verification endpoint is down. The payload is neither
	// accepted nor rejected.
	ErrUnavailable = errors.New("signature verification unavailable")
)

// IsUnavailable reports whether err means the verifier could not reach a
// verdict, as opposed to rejecting the signature.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Request carries everything any algorithm needs to authenticate one payload.
// Adapters fill the parts their provider signs.
type Request struct {
	Provider domain.Provider
	// Message is the canonical serialization for HMAC providers.
	Message []byte
	// Params are the decoded payload fields excluding the signature itself.
	Params map[string]string
	// Signature is the signature supplied with the payload.
	Signature string
	// SignType is the declared algorithm, when the provider sends one.
	SignType string
	Body     []byte
	Headers  http.Header
}

// Verifier authenticates one provider's payloads.
// A false result with a nil error is a signature mismatch.
type Verifier interface {
	Verify(ctx context.Context, req Request) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req Request) (bool, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, req Request) (bool, error) {
	return f(ctx, req)
}

// Registry dispatches verification to the verifier registered for each provider.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[domain.Provider]Verifier
	bypass    bool
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. skipVerification is honored only in
// binaries built with the webhooktest tag.
func NewRegistry(skipVerification bool, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		verifiers: make(map[domain.Provider]Verifier),
		logger:    logger.Named("signature"),
	}
	if skipVerification {
		if bypassAvailable {
			r.bypass = true
			r.logger.Warn("signature verification bypassed for tests")
		} else {
			r.logger.Error("insecure_skip_verify is set but ignored in this build")
		}
	}
	return r
}

// Register sets the verifier for a provider.
func (r *Registry) Register(p domain.Provider, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[p] = v
}

// Verify authenticates req with the provider's verifier.
func (r *Registry) Verify(ctx context.Context, req Request) (bool, error) {
	if r.bypass {
		return true, nil
	}

	r.mu.RLock()
	v, ok := r.verifiers[req.Provider]
	r.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotConfigured, req.Provider)
	}
	if req.Signature == "" {
		return false, ErrMissingSignature
	}
	return v.Verify(ctx, req)
}
