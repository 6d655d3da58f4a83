// Package archive keeps raw webhook payloads in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

// Config holds object storage configuration.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one JSON document per accepted event.
type S3Archiver struct {
	client objectPutter
	bucket string
}

// NewS3Archiver creates an archiver. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket not configured")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: cfg.Bucket}, nil
}

type document struct {
	Provider        domain.Provider `json:"provider"`
	ProviderEventID string          `json:"providerEventId"`
	OrderID         string          `json:"orderId"`
	CanonicalStatus domain.Status   `json:"canonicalStatus"`
	NativeStatus    string          `json:"nativeStatus"`
	OccurredAt      time.Time       `json:"occurredAt"`
	ArchivedAt      time.Time       `json:"archivedAt"`
	RawPayload      string          `json:"rawPayload"`
}

// Key returns the object key for ev.
func Key(ev *domain.WebhookEvent) string {
	return fmt.Sprintf("webhooks/%s/%s/%s.json",
		ev.Provider,
		ev.OccurredAt.UTC().Format(time.DateOnly),
		url.PathEscape(ev.ProviderEventID))
}

// Archive stores ev's raw payload with its canonical summary.
func (a *S3Archiver) Archive(ctx context.Context, ev *domain.WebhookEvent) error {
	body, err := json.Marshal(document{
		Provider:        ev.Provider,
		ProviderEventID: ev.ProviderEventID,
		OrderID:         ev.OrderID,
		CanonicalStatus: ev.CanonicalStatus,
		NativeStatus:    ev.NativeStatus,
		OccurredAt:      ev.OccurredAt,
		ArchivedAt:      time.Now().UTC(),
		RawPayload:      string(ev.RawPayload),
	})
	if err != nil {
		return fmt.Errorf("encode archive document: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(Key(ev)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put archive object: %w", err)
	}
	return nil
}
