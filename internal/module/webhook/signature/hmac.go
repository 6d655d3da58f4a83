package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HMACVerifier checks a hex HMAC-SHA256 of the canonical message.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for a shared secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify implements Verifier.
func (v *HMACVerifier) Verify(_ context.Context, req Request) (bool, error) {
	if len(v.secret) == 0 {
		return false, ErrNotConfigured
	}
	supplied, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		return false, nil
	}
	return hmac.Equal(supplied, SignHMAC(v.secret, req.Message)), nil
}

// SignHMAC returns the raw HMAC-SHA256 of message.
func SignHMAC(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// SignHMACHex returns the hex HMAC-SHA256 of message.
func SignHMACHex(secret, message string) string {
	return hex.EncodeToString(SignHMAC([]byte(secret), []byte(message)))
}
