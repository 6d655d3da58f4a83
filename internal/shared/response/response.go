package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/tradelane/payhook/internal/shared/errors"
)

// Fail writes err as a JSON error body with the mapped status code.
// Errors that are not AppErrors are reported as internal without leaking detail.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("internal error", err)
	}
	c.JSON(apperrors.GetStatusCode(appErr), appErr.ToResponse())
}

// BadRequest writes a 400 error body.
func BadRequest(c *gin.Context, message string) {
	Fail(c, apperrors.BadRequest(message))
}

// OK writes data with status 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Accepted writes data with status 202.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, data)
}
