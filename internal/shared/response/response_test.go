package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	apperrors "github.com/tradelane/payhook/internal/shared/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFail(t *testing.T) {
	t.Run("app error keeps status and code", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		Fail(c, apperrors.NotFound("projection"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"projection not found"}}`, w.Body.String())
	})

	t.Run("plain error is masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		Fail(c, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
		assert.Len(t, c.Errors, 1)
	})
}
