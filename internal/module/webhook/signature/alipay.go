package signature

import (
	"context"
	"fmt"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
)

// AlipayRSAVerifier checks Alipay's RSA2 notification signature with the
// Alipay public key.
type AlipayRSAVerifier struct {
	publicKey string
}

// NewAlipayRSAVerifier creates a verifier for a base64 Alipay public key.
func NewAlipayRSAVerifier(publicKey string) *AlipayRSAVerifier {
	return &AlipayRSAVerifier{publicKey: publicKey}
}

// Verify implements Verifier.
func (v *AlipayRSAVerifier) Verify(_ context.Context, req Request) (bool, error) {
	if v.publicKey == "" {
		return false, ErrNotConfigured
	}

	bm := make(gopay.BodyMap, len(req.Params)+2)
	for k, val := range req.Params {
		bm.Set(k, val)
	}
	bm.Set("sign", req.Signature)
	signType := req.SignType
	if signType == "" {
		signType = "RSA2"
	}
	bm.Set("sign_type", signType)

	ok, err := alipay.VerifySign(v.publicKey, bm)
	if err != nil {
		// gopay reports mismatches through err too.
		return false, fmt.Errorf("alipay verify sign: %w", err)
	}
	return ok, nil
}
