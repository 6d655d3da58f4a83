package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// PayFortVerifier checks the SHA-256 digest PayFort computes over its
// sorted parameters wrapped in the response phrase.
type PayFortVerifier struct {
	phrase string
}

// NewPayFortVerifier creates a verifier for the SHA response phrase.
func NewPayFortVerifier(responsePhrase string) *PayFortVerifier {
	return &PayFortVerifier{phrase: responsePhrase}
}

// Verify implements Verifier.
func (v *PayFortVerifier) Verify(_ context.Context, req Request) (bool, error) {
	if v.phrase == "" {
		return false, ErrNotConfigured
	}
	supplied, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		return false, nil
	}
	expected, _ := hex.DecodeString(PayFortDigest(v.phrase, req.Params))
	return hmac.Equal(supplied, expected), nil
}

// PayFortDigest returns hex(SHA-256(phrase + k1=v1k2=v2... + phrase)) with keys sorted.
// The signature field is never part of the digest.
func PayFortDigest(phrase string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(phrase)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(phrase)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
