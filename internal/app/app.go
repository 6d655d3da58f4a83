package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/tradelane/payhook/cmd/server/docs" // swagger docs
	"github.com/tradelane/payhook/internal/module/webhook"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
	"github.com/tradelane/payhook/internal/shared/config"
	"github.com/tradelane/payhook/internal/shared/database"
	"github.com/tradelane/payhook/internal/shared/logger"
	"github.com/tradelane/payhook/internal/shared/metrics"
	"github.com/tradelane/payhook/internal/shared/middleware"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     goredis.UniversalClient
	Logger    *logger.Logger
	ZapLogger *zap.Logger
	Metrics   *metrics.Metrics

	// Webhook pipeline
	Scheduler  *retry.Scheduler
	Dispatcher *webhook.Dispatcher
	Gateway    *webhook.Gateway

	// HTTP handlers
	WebhookHandler *webhook.Handler
	OpsHandler     *webhook.OpsHandler
	OperatorTokens *middleware.OperatorTokens
}

// App represents the application.
type App struct {
	deps    *Dependencies
	cleanup func()
	router  *gin.Engine
}

// LoadConfig loads the application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("init dependencies: %w", err)
	}

	app := &App{deps: deps, cleanup: cleanup}
	app.router = app.setupRouter()
	app.registerRoutes()
	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.deps.Config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.deps.ZapLogger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.deps.Logger))
	r.Use(middleware.Metrics(a.deps.Metrics))

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

// registerRoutes registers the webhook and operator routes.
func (a *App) registerRoutes() {
	// Webhook routes authenticate by signature, not by token.
	a.deps.WebhookHandler.RegisterRoutes(&a.router.RouterGroup)

	ops := a.router.Group("/ops")
	ops.Use(middleware.OpsCORS(a.deps.Config.Ops.AllowedOrigins))
	ops.Use(middleware.RequireOperator(a.deps.OperatorTokens))
	a.deps.OpsHandler.RegisterRoutes(ops)
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	status := http.StatusOK
	if err := database.Ping(a.deps.DB); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if a.deps.Redis != nil {
		checks["redis"] = "ok"
		if err := a.deps.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			if a.deps.Config.Webhook.IdempotencyBackend == "redis" {
				status = http.StatusServiceUnavailable
			}
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// Start starts background workers.
func (a *App) Start(ctx context.Context) error {
	if err := a.deps.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start retry scheduler: %w", err)
	}
	return nil
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the module logger.
func (a *App) Logger() *zap.Logger {
	return a.deps.ZapLogger
}

// Stop drains in-flight dispatches, stops the retry scheduler and releases
// connections. Call it after the HTTP server has shut down.
func (a *App) Stop() {
	a.deps.Dispatcher.Wait()
	a.deps.Scheduler.Stop()
	if a.cleanup != nil {
		a.cleanup()
	}
}
