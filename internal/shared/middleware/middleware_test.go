package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradelane/payhook/internal/shared/logger"
	"github.com/tradelane/payhook/internal/shared/metrics"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			assert.Equal(t, GetRequestID(c), RequestIDFromContext(c.Request.Context()))
			c.String(http.StatusOK, GetRequestID(c))
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "existing-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "existing-request-id-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "existing-request-id-123", w.Body.String())
	})
}

func TestLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})

	router := gin.New()
	router.Use(RequestID(), Logging(log))
	router.POST("/webhooks/:provider", func(c *gin.Context) {
		_ = c.Error(errors.New("malformed payload"))
		c.Status(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/click", nil)
	req.Header.Set(RequestIDHeader, "req-77")
	router.ServeHTTP(w, req)

	out := buf.String()
	assert.Contains(t, out, "HTTP Request")
	assert.Contains(t, out, `"provider":"click"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"request_id":"req-77"`)
	assert.Contains(t, out, `"error":"malformed payload"`)
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zap.NewNop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestMetrics(t *testing.T) {
	m := metrics.NewWithRegisterer("mw", prometheus.NewRegistry())

	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestRequireOperator(t *testing.T) {
	tokens := NewOperatorTokens("ops-secret", "payhook-ops")

	newRouter := func(v TokenValidator) *gin.Engine {
		router := gin.New()
		router.Use(RequireOperator(v))
		router.GET("/ops/ping", func(c *gin.Context) {
			c.String(http.StatusOK, GetOperator(c))
		})
		return router
	}

	t.Run("rejects missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(tokens).ServeHTTP(w, httptest.NewRequest("GET", "/ops/ping", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("accepts valid token", func(t *testing.T) {
		token, err := tokens.Issue("alice", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/ops/ping", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+token)
		w := httptest.NewRecorder()
		newRouter(tokens).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", w.Body.String())
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		token, err := NewOperatorTokens("other", "payhook-ops").Issue("mallory", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/ops/ping", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+token)
		w := httptest.NewRecorder()
		newRouter(tokens).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := tokens.Issue("alice", -time.Minute)
		require.NoError(t, err)

		_, err = tokens.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("disabled without secret", func(t *testing.T) {
		_, err := NewOperatorTokens("", "payhook-ops").Validate("anything")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestOpsCORS(t *testing.T) {
	router := gin.New()
	router.Use(OpsCORS([]string{"https://ops.example.com"}))
	router.GET("/ops/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("OPTIONS", "/ops/x", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
