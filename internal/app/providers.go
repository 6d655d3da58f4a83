package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradelane/payhook/internal/module/webhook"
	"github.com/tradelane/payhook/internal/module/webhook/archive"
	"github.com/tradelane/payhook/internal/module/webhook/collaborator"
	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
	"github.com/tradelane/payhook/internal/module/webhook/signature"
	"github.com/tradelane/payhook/internal/shared/cache"
	"github.com/tradelane/payhook/internal/shared/config"
	"github.com/tradelane/payhook/internal/shared/database"
	"github.com/tradelane/payhook/internal/shared/logger"
	"github.com/tradelane/payhook/internal/shared/metrics"
	"github.com/tradelane/payhook/internal/shared/middleware"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideZapLogger,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideHTTPClient,
	ProvideMetrics,
)

// ProvideLogger creates the access logger.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideZapLogger creates the module logger.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init zap logger: %w", err)
	}
	return zapLog, func() { _ = zapLog.Sync() }, nil
}

// ProvideDatabase opens the PostgreSQL pool.
func ProvideDatabase(cfg *config.Config, zapLog *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database, zapLog)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	return db, func() { _ = database.Close(db) }, nil
}

// ProvideRedisClient connects to Redis. Redis is optional unless it backs
// the idempotency store.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) (goredis.UniversalClient, func(), error) {
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		if cfg.Webhook.IdempotencyBackend == "redis" {
			return nil, nil, fmt.Errorf("init redis: %w", err)
		}
		zapLog.Warn("redis connection failed, continuing without it", zap.Error(err))
		return nil, func() {}, nil
	}
	return client, func() { _ = cache.Close(client) }, nil
}

// ProvideHTTPClient creates the pooled client shared by collaborator calls.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout: cfg.Collaborators.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// ProvideMetrics creates the metrics registered on the default registry.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New("payhook")
}

// ===== Webhook Providers =====

// WebhookSet provides the webhook pipeline.
var WebhookSet = wire.NewSet(
	webhook.NewDefaultAdapterRegistry,
	ProvideVerifier,
	wire.Bind(new(signature.Verifier), new(*signature.Registry)),
	ProvideIdempotencyStore,
	webhook.NewGormProjectionStore,
	webhook.NewTransitionEngine,
	webhook.NewGormAuditLog,
	ProvideRetryScheduler,
	wire.Bind(new(webhook.RetryScheduler), new(*retry.Scheduler)),
	wire.Bind(new(webhook.RetryOperator), new(*retry.Scheduler)),
	ProvideOrderProjection,
	ProvideNotifier,
	ProvideArchiver,
	ProvideDispatcher,
	wire.Bind(new(webhook.EventDispatcher), new(*webhook.Dispatcher)),
	webhook.NewGateway,
	ProvideWebhookHandler,
	webhook.NewOpsHandler,
	ProvideOperatorTokens,
)

// ProvideVerifier registers a signature verifier for every configured provider.
// Providers without credentials reject every delivery.
func ProvideVerifier(cfg *config.Config, zapLog *zap.Logger) *signature.Registry {
	wh := cfg.Webhook
	reg := signature.NewRegistry(wh.InsecureSkipVerify, zapLog)

	if wh.Click.Secret != "" {
		reg.Register(domain.ProviderClick, signature.NewHMACVerifier(wh.Click.Secret))
	}
	switch {
	case wh.Alipay.AlipayPublicKey != "":
		reg.Register(domain.ProviderAlipay, signature.NewAlipayRSAVerifier(wh.Alipay.AlipayPublicKey))
	case wh.Alipay.Secret != "":
		reg.Register(domain.ProviderAlipay, signature.NewHMACVerifier(wh.Alipay.Secret))
	}
	if wh.PayPal.WebhookID != "" {
		reg.Register(domain.ProviderPayPal, signature.NewPayPalVerifier(signature.PayPalConfig{
			ClientID:     wh.PayPal.ClientID,
			ClientSecret: wh.PayPal.ClientSecret,
			WebhookID:    wh.PayPal.WebhookID,
			BaseURL:      wh.PayPal.BaseURL,
			Timeout:      wh.VerifyTimeout,
		}))
	}
	if wh.PayFort.ResponsePhrase != "" {
		reg.Register(domain.ProviderPayFort, signature.NewPayFortVerifier(wh.PayFort.ResponsePhrase))
	}
	if wh.TwoCheckout.Secret != "" {
		reg.Register(domain.ProviderTwoCheckout, signature.NewHMACVerifier(wh.TwoCheckout.Secret))
	}
	return reg
}

// ProvideIdempotencyStore selects the configured idempotency backend.
func ProvideIdempotencyStore(cfg *config.Config, db *gorm.DB, rdb goredis.UniversalClient) (webhook.IdempotencyStore, error) {
	switch cfg.Webhook.IdempotencyBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis idempotency backend configured without a redis connection")
		}
		return webhook.NewRedisIdempotencyStore(rdb, cfg.Webhook.IdempotencyTTL), nil
	default:
		return webhook.NewGormIdempotencyStore(db), nil
	}
}

// ProvideRetryScheduler creates the retry scheduler over the retry tables.
func ProvideRetryScheduler(cfg *config.Config, db *gorm.DB, zapLog *zap.Logger, m *metrics.Metrics) *retry.Scheduler {
	return retry.NewScheduler(retry.NewRepository(db), zapLog, m, &retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
		PollInterval:   cfg.Retry.PollInterval,
		Lease:          cfg.Retry.Lease,
		BatchSize:      cfg.Retry.BatchSize,
		MaxConcurrent:  cfg.Retry.MaxConcurrent,
	})
}

func collaboratorConfig(cfg *config.Config, baseURL string) collaborator.Config {
	return collaborator.Config{
		BaseURL:          baseURL,
		Timeout:          cfg.Collaborators.Timeout,
		FailureThreshold: cfg.Collaborators.FailureThreshold,
		OpenTimeout:      cfg.Collaborators.CircuitTimeout,
	}
}

// ProvideOrderProjection creates the order service client, or a log sink
// when no order service is configured.
func ProvideOrderProjection(cfg *config.Config, httpClient *http.Client, zapLog *zap.Logger) webhook.OrderProjection {
	if cfg.Collaborators.OrderBaseURL == "" {
		zapLog.Warn("order service not configured, status changes are only logged")
		return collaborator.NewLogSink("orders", zapLog)
	}
	return collaborator.NewOrderProjectionClient(collaboratorConfig(cfg, cfg.Collaborators.OrderBaseURL), httpClient)
}

// ProvideNotifier creates the notification service client, or a log sink
// when no notification service is configured.
func ProvideNotifier(cfg *config.Config, httpClient *http.Client, zapLog *zap.Logger) webhook.Notifier {
	if cfg.Collaborators.NotificationBaseURL == "" {
		zapLog.Warn("notification service not configured, notifications are only logged")
		return collaborator.NewLogSink("notifications", zapLog)
	}
	return collaborator.NewNotificationClient(collaboratorConfig(cfg, cfg.Collaborators.NotificationBaseURL), httpClient)
}

// ProvideArchiver creates the raw payload archive. It returns nil when no
// bucket is configured.
func ProvideArchiver(cfg *config.Config, zapLog *zap.Logger) (webhook.PayloadArchiver, error) {
	if !cfg.Storage.Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	archiver, err := archive.NewS3Archiver(ctx, archive.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("init payload archive: %w", err)
	}
	zapLog.Info("raw payload archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	return archiver, nil
}

// ProvideDispatcher creates the collaborator dispatcher.
func ProvideDispatcher(
	cfg *config.Config,
	orders webhook.OrderProjection,
	notifier webhook.Notifier,
	scheduler webhook.RetryScheduler,
	archiver webhook.PayloadArchiver,
	audit webhook.AuditLog,
	zapLog *zap.Logger,
	m *metrics.Metrics,
) *webhook.Dispatcher {
	return webhook.NewDispatcher(orders, notifier, scheduler, archiver, audit, zapLog, m, cfg.Collaborators.Timeout)
}

// ProvideWebhookHandler creates the inbound webhook handler.
func ProvideWebhookHandler(cfg *config.Config, gateway *webhook.Gateway, zapLog *zap.Logger) *webhook.Handler {
	return webhook.NewHandler(gateway, cfg.Webhook.MaxBodyBytes, zapLog)
}

// ProvideOperatorTokens creates the operator token validator.
func ProvideOperatorTokens(cfg *config.Config) *middleware.OperatorTokens {
	return middleware.NewOperatorTokens(cfg.Ops.JWTSecret, cfg.Ops.JWTIssuer)
}
