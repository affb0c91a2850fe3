package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/response"
)

type payUPIRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	upiRequest
}

type payCardRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	cardRequest
}

type payCODRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

func (h *Handler) pay(c *gin.Context, in service.PayInput) {
	p, err := h.paymentService.Pay(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"payment": p, "is_success": paymentSucceeded(p)})
}

// PayUPI UPI 支付
// @Summary UPI 支付
// @Description 对 pending 订单发起 UPI 支付；网关拒绝时返回 is_success=false 的支付记录
// @Tags 支付
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body payUPIRequest true "UPI 支付信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/payments/upi [post]
func (h *Handler) PayUPI(c *gin.Context) {
	var req payUPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.pay(c, service.PayInput{OrderID: req.OrderID, Method: model.PaymentMethodUPI, UPI: req.upiRequest.toInput()})
}

// PayCard 银行卡支付
// @Summary 银行卡支付
// @Tags 支付
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body payCardRequest true "银行卡信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/payments/card [post]
func (h *Handler) PayCard(c *gin.Context) {
	var req payCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.pay(c, service.PayInput{OrderID: req.OrderID, Method: model.PaymentMethodCard, Card: req.cardRequest.toInput()})
}

// PayCOD 货到付款确认
// @Summary 货到付款
// @Tags 支付
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body payCODRequest true "订单"
// @Success 200 {object} response.Response
// @Router /api/v1/payments/cod [post]
func (h *Handler) PayCOD(c *gin.Context) {
	var req payCODRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.pay(c, service.PayInput{OrderID: req.OrderID, Method: model.PaymentMethodCOD})
}

// GetPayment 支付详情
// @Summary 支付详情
// @Tags 支付
// @Security BearerAuth
// @Param id path string true "支付ID"
// @Success 200 {object} response.Response{data=model.Payment}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/payments/{id} [get]
func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.paymentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, p)
}

// ListMyPayments 当前用户的支付记录
// @Summary 我的支付记录
// @Tags 支付
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.Page}
// @Router /api/v1/payments/my/payments [get]
func (h *Handler) ListMyPayments(c *gin.Context) {
	q := pageQuery(c)
	list, total, err := h.paymentService.ListMine(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, pageResult(q, total, list))
}
