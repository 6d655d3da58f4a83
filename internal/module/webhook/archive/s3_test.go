package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	return &s3.PutObjectOutput{}, f.err
}

func testEvent(t *testing.T) *domain.WebhookEvent {
	t.Helper()
	ev, err := domain.NewWebhookEvent(domain.WebhookEvent{
		Provider:        domain.ProviderPayFort,
		ProviderEventID: "169996|order-7:00000",
		OrderID:         "order-7",
		Amount:          decimal.RequireFromString("100.50"),
		Currency:        "AED",
		CanonicalStatus: domain.StatusCompleted,
		NativeStatus:    "00000",
		OccurredAt:      time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC),
		RawPayload:      []byte(`{"response_code":"00000"}`),
		SignatureValid:  true,
	})
	require.NoError(t, err)
	return ev
}

func TestKey(t *testing.T) {
	assert.Equal(t, "webhooks/payfort/2026-03-01/169996%7Corder-7:00000.json", Key(testEvent(t)))
}

func TestS3Archiver_Archive(t *testing.T) {
	fake := &fakePutter{}
	a := &S3Archiver{client: fake, bucket: "raw-webhooks"}

	require.NoError(t, a.Archive(context.Background(), testEvent(t)))

	assert.Equal(t, "raw-webhooks", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "application/json", aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(len(fake.body)), aws.ToInt64(fake.input.ContentLength))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(fake.body, &doc))
	assert.Equal(t, "payfort", doc["provider"])
	assert.Equal(t, "completed", doc["canonicalStatus"])
	assert.Equal(t, `{"response_code":"00000"}`, doc["rawPayload"])
}

func TestS3Archiver_PutError(t *testing.T) {
	a := &S3Archiver{client: &fakePutter{err: errors.New("access denied")}, bucket: "b"}
	err := a.Archive(context.Background(), testEvent(t))
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Archiver_RequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), Config{})
	assert.Error(t, err)
}
