package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

const defaultMaxBodyBytes = 1 << 20

// Handler receives provider webhooks over HTTP.
type Handler struct {
	gateway      *Gateway
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHandler creates a webhook handler. Bodies above maxBodyBytes are
// rejected as malformed.
func NewHandler(gateway *Gateway, maxBodyBytes int64, logger *zap.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gateway: gateway, maxBodyBytes: maxBodyBytes, logger: logger.Named("webhook-handler")}
}

// RegisterRoutes registers the webhook routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:provider", h.Receive)
}

// Receive handles one provider notification.
//
//	@Summary		Receive a payment webhook
//	@Description	Authenticates, normalizes and applies a provider notification.
//	@Tags			webhooks
//	@Accept			json,x-www-form-urlencoded
//	@Produce		json
//	@Param			provider	path		string	true	"click, alipay, paypal, payfort or twocheckout"
//	@Success		200			{object}	domain.Ack
//	@Failure		400			{object}	domain.Ack
//	@Failure		404			{object}	domain.Ack
//	@Failure		500			{object}	domain.Ack
//	@Router			/webhooks/{provider} [post]
func (h *Handler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook body too large",
				zap.String("provider", provider),
				zap.Int64("limit", tooLarge.Limit))
		} else {
			h.logger.Warn("failed to read webhook body", zap.String("provider", provider), zap.Error(err))
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, domain.Ack{Message: MessageMalformed, ProcessedAt: h.gateway.now().UTC()})
		return
	}

	ack, err := h.gateway.Handle(c.Request.Context(), provider, body, c.Request.Header)
	if err != nil {
		_ = c.Error(err)
	}
	c.JSON(StatusCode(err), ack)
}
