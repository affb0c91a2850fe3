package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/response"
)

type refundRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

type refundDecisionRequest struct {
	AdminResponse string `json:"admin_response" binding:"max=500"`
}

type updateRefundRequest struct {
	Status        string `json:"status" binding:"required,oneof=approved denied"`
	AdminResponse string `json:"admin_response" binding:"max=500"`
}

func (h *Handler) requestRefund(c *gin.Context, key service.RefundKey) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.refunds.Request(c.Request.Context(), key, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}

func (h *Handler) decideRefund(c *gin.Context, key service.RefundKey, decision service.RefundDecision) {
	var req refundDecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	o, err := h.refunds.Decide(c.Request.Context(), key, decision, req.AdminResponse)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}

// RequestOrderRefund 按订单申请退款
// @Summary 申请退款
// @Tags 退款
// @Accept json
// @Security BearerAuth
// @Param id path string true "订单ID"
// @Param request body refundRequest true "退款原因"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/orders/{id}/request-refund [post]
func (h *Handler) RequestOrderRefund(c *gin.Context) {
	h.requestRefund(c, service.RefundKey{OrderID: c.Param("id")})
}

// RequestPaymentRefund 按支付流水号申请退款
// @Summary 按流水号申请退款
// @Tags 退款
// @Accept json
// @Security BearerAuth
// @Param transactionId path string true "支付流水号"
// @Param request body refundRequest true "退款原因"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /api/v1/payments/{transactionId}/refund [post]
func (h *Handler) RequestPaymentRefund(c *gin.Context) {
	h.requestRefund(c, service.RefundKey{TransactionID: c.Param("transactionId")})
}

// ApprovePaymentRefund 管理员批准退款
// @Summary 批准退款
// @Tags 退款
// @Security BearerAuth
// @Param transactionId path string true "支付流水号"
// @Param request body refundDecisionRequest false "处理意见"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 422 {object} response.Response
// @Router /api/v1/payments/{transactionId}/refund/approve [put]
func (h *Handler) ApprovePaymentRefund(c *gin.Context) {
	h.decideRefund(c, service.RefundKey{TransactionID: c.Param("transactionId")}, service.RefundApprove)
}

// RejectPaymentRefund 管理员拒绝退款
// @Summary 拒绝退款
// @Tags 退款
// @Security BearerAuth
// @Param transactionId path string true "支付流水号"
// @Param request body refundDecisionRequest false "处理意见"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /api/v1/payments/{transactionId}/refund/reject [put]
func (h *Handler) RejectPaymentRefund(c *gin.Context) {
	h.decideRefund(c, service.RefundKey{TransactionID: c.Param("transactionId")}, service.RefundDeny)
}

// UpdateOrderRefund 管理员处理订单退款申请
// @Summary 处理退款申请
// @Tags 管理
// @Accept json
// @Security BearerAuth
// @Param id path string true "订单ID"
// @Param request body updateRefundRequest true "处理结果"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 422 {object} response.Response
// @Router /api/v1/admin/orders/{id}/update-refund [put]
func (h *Handler) UpdateOrderRefund(c *gin.Context) {
	var req updateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.refunds.Decide(c.Request.Context(), service.RefundKey{OrderID: c.Param("id")},
		service.RefundDecision(req.Status), req.AdminResponse)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}

// ListRefundRequests 退款申请列表
// @Summary 退款申请列表
// @Tags 管理
// @Security BearerAuth
// @Param status query string false "退款状态" Enums(requested, approved, denied) default(requested)
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.Page}
// @Router /api/v1/admin/refund-requests [get]
func (h *Handler) ListRefundRequests(c *gin.Context) {
	q := pageQuery(c)
	list, total, err := h.refunds.ListRequests(c.Request.Context(), model.RefundStatus(c.Query("status")), q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, pageResult(q, total, list))
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
