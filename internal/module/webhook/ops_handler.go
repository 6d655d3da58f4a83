package webhook

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
	"github.com/tradelane/payhook/internal/module/webhook/retry"
	apperrors "github.com/tradelane/payhook/internal/shared/errors"
	"github.com/tradelane/payhook/internal/shared/middleware"
	"github.com/tradelane/payhook/internal/shared/response"
)

// RetryOperator is the part of the retry scheduler exposed to operators.
type RetryOperator interface {
	ListDeadLetters(ctx context.Context, filter *retry.DeadLetterFilter) ([]*retry.DeadLetter, error)
	Requeue(ctx context.Context, id uuid.UUID) (*retry.Task, error)
	CancelByOrder(ctx context.Context, orderID string, kinds ...string) (int64, error)
	Pending(ctx context.Context, orderID string) ([]*retry.Task, error)
}

// OpsHandler serves the operator API.
type OpsHandler struct {
	gateway *Gateway
	retries RetryOperator
	logger  *zap.Logger
}

// NewOpsHandler creates an ops handler.
func NewOpsHandler(gateway *Gateway, retries RetryOperator, logger *zap.Logger) *OpsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{gateway: gateway, retries: retries, logger: logger.Named("ops")}
}

// RegisterRoutes registers the ops routes. The group must already be
// protected by operator authentication.
func (h *OpsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/retry", h.Replay)
	r.GET("/dead-letters", h.ListDeadLetters)
	r.POST("/dead-letters/:id/requeue", h.RequeueDeadLetter)
	r.GET("/orders/:order_id/projection", h.GetProjection)
	r.GET("/orders/:order_id/retry-tasks", h.ListRetryTasks)
	r.DELETE("/orders/:order_id/retry-tasks", h.CancelRetryTasks)
}

// ReplayRequest asks for an order's current status to be re-dispatched.
type ReplayRequest struct {
	Provider   string `json:"provider" binding:"required"`
	OrderID    string `json:"orderId" binding:"required"`
	// MaxRetries is the number of retries after the first delivery; omitted
	// uses the scheduler default.
	MaxRetries *int `json:"maxRetries" binding:"omitempty,gte=0,lte=20"`
}

// CancelResponse reports cancelled retry tasks.
type CancelResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// Replay re-dispatches an order's current status.
//
//	@Summary	Replay an order's payment status to collaborators
//	@Tags		ops
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		ReplayRequest	true	"Replay request"
//	@Success	202		{object}	domain.Ack
//	@Failure	400		{object}	apperrors.ErrorResponse
//	@Failure	404		{object}	apperrors.ErrorResponse
//	@Router		/ops/webhooks/retry [post]
func (h *OpsHandler) Replay(c *gin.Context) {
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	maxRetries := -1
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	ack, err := h.gateway.Replay(c.Request.Context(), req.Provider, req.OrderID, maxRetries)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("operator replay",
		zap.String("operator", middleware.GetOperator(c)),
		zap.String("provider", req.Provider),
		zap.String("order_id", req.OrderID))
	response.Accepted(c, ack)
}

// ListDeadLetters lists exhausted retry tasks.
//
//	@Summary	List dead-lettered dispatches
//	@Tags		ops
//	@Produce	json
//	@Security	BearerAuth
//	@Param		kind		query		string	false	"order_projection or notification"
//	@Param		order_id	query		string	false	"Order ID"
//	@Param		limit		query		int		false	"Page size"	default(50)
//	@Param		offset		query		int		false	"Offset"
//	@Success	200			{array}		retry.DeadLetter
//	@Router		/ops/dead-letters [get]
func (h *OpsHandler) ListDeadLetters(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit <= 0 || limit > 500 {
		response.BadRequest(c, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		response.BadRequest(c, "offset must not be negative")
		return
	}

	letters, err := h.retries.ListDeadLetters(c.Request.Context(), &retry.DeadLetterFilter{
		Kind:    c.Query("kind"),
		OrderID: c.Query("order_id"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, letters)
}

// RequeueDeadLetter turns a dead letter back into a retry task.
//
//	@Summary	Requeue a dead-lettered dispatch
//	@Tags		ops
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Dead letter ID"
//	@Success	202	{object}	retry.Task
//	@Failure	404	{object}	apperrors.ErrorResponse
//	@Failure	409	{object}	apperrors.ErrorResponse
//	@Router		/ops/dead-letters/{id}/requeue [post]
func (h *OpsHandler) RequeueDeadLetter(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid dead letter id")
		return
	}

	task, err := h.retries.Requeue(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("operator requeued dead letter",
		zap.String("operator", middleware.GetOperator(c)),
		zap.String("dead_letter_id", id.String()),
		zap.String("task_id", task.ID.String()))
	response.Accepted(c, task)
}

// GetProjection returns an order's payment projection.
//
//	@Summary	Get an order's payment projection
//	@Tags		ops
//	@Produce	json
//	@Security	BearerAuth
//	@Param		order_id	path		string	true	"Order ID"
//	@Success	200			{object}	PaymentProjection
//	@Failure	404			{object}	apperrors.ErrorResponse
//	@Router		/ops/orders/{order_id}/projection [get]
func (h *OpsHandler) GetProjection(c *gin.Context) {
	proj, err := h.gateway.Projection(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, proj)
}

// ListRetryTasks lists an order's pending retry tasks.
//
//	@Summary	List an order's retry tasks
//	@Tags		ops
//	@Produce	json
//	@Security	BearerAuth
//	@Param		order_id	path	string	true	"Order ID"
//	@Success	200			{array}	retry.Task
//	@Router		/ops/orders/{order_id}/retry-tasks [get]
func (h *OpsHandler) ListRetryTasks(c *gin.Context) {
	tasks, err := h.retries.Pending(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, tasks)
}

// CancelRetryTasks drops an order's retry tasks.
//
//	@Summary	Cancel an order's retry tasks
//	@Tags		ops
//	@Produce	json
//	@Security	BearerAuth
//	@Param		order_id	path		string	true	"Order ID"
//	@Param		kind		query		string	false	"Only cancel tasks of this kind"
//	@Success	200			{object}	CancelResponse
//	@Router		/ops/orders/{order_id}/retry-tasks [delete]
func (h *OpsHandler) CancelRetryTasks(c *gin.Context) {
	orderID := c.Param("order_id")
	var kinds []string
	if kind := c.Query("kind"); kind != "" {
		kinds = append(kinds, kind)
	}

	n, err := h.retries.CancelByOrder(c.Request.Context(), orderID, kinds...)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("operator cancelled retry tasks",
		zap.String("operator", middleware.GetOperator(c)),
		zap.String("order_id", orderID),
		zap.Int64("count", n))
	response.OK(c, CancelResponse{Cancelled: n})
}

func (h *OpsHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrProjectionNotFound):
		response.Fail(c, apperrors.NotFound("payment projection"))
	case errors.Is(err, retry.ErrDeadLetterNotFound):
		response.Fail(c, apperrors.NotFound("dead letter"))
	case errors.Is(err, retry.ErrAlreadyRequeued):
		response.Fail(c, apperrors.Conflict("dead letter already requeued"))
	case errors.Is(err, domain.ErrUnknownGateway):
		response.BadRequest(c, "unknown provider")
	case errors.Is(err, context.DeadlineExceeded):
		response.Fail(c, apperrors.Unavailable("store timed out"))
	default:
		h.logger.Error("ops request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Fail(c, err)
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
