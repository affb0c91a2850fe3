package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/logger"
	"github.com/d60-Lab/food-order/pkg/response"
)

// Handler HTTP 入口，聚合订单、支付与退款服务
type Handler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	refunds        *service.RefundCoordinator
}

func New(orders *service.OrderService, payments *service.PaymentService, refunds *service.RefundCoordinator) *Handler {
	return &Handler{orderService: orders, paymentService: payments, refunds: refunds}
}

// writeError 统一把服务层错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		response.Error(c, http.StatusConflict, "unavailable", err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		response.Error(c, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		response.Error(c, http.StatusUnprocessableEntity, "invalid_state", err.Error())
	case errors.Is(err, service.ErrReconciliation):
		logger.Error("checkout needs reconciliation", zap.String("path", c.FullPath()), zap.Error(err))
		if hub := sentry.CurrentHub(); hub.Client() != nil {
			hub.CaptureException(err)
		}
		response.Error(c, http.StatusInternalServerError, "reconciliation_required", err.Error())
	default:
		response.InternalError(c, err)
	}
}

func pageQuery(c *gin.Context) service.PageQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return service.PageQuery{Page: page, PageSize: pageSize}.Normalize()
}

func pageResult(q service.PageQuery, total int64, list interface{}) response.Page {
	return response.Page{Page: q.Page, PageSize: q.PageSize, Total: total, List: list}
}
