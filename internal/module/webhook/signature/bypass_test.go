//go:build !webhooktest

package signature

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegistry_SkipFlagIgnoredInProductionBuild(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRegistry(true, zap.New(core))
	r.Register(domain.ProviderClick, NewHMACVerifier("s"))

	ok, err := r.Verify(context.Background(), Request{Provider: domain.ProviderClick, Message: []byte("m"), Signature: "00"})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("insecure_skip_verify is set but ignored in this build").Len())
}
