package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/food-order/internal/model"
	"github.com/d60-Lab/food-order/internal/service"
	"github.com/d60-Lab/food-order/pkg/response"
)

type orderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Notes     string `json:"notes" binding:"max=500"`
}

type upiRequest struct {
	UPIID  string `json:"upi_id" binding:"required,upi_id"`
	UPIApp string `json:"upi_app" binding:"required,oneof=gpay phonepe paytm bhim amazonpay other"`
}

type cardRequest struct {
	CardNumber     string `json:"card_number" binding:"required,card_number"`
	ExpiryMonth    int    `json:"expiry_month" binding:"required,min=1,max=12"`
	ExpiryYear     int    `json:"expiry_year" binding:"required,min=0,max=9999"`
	CVV            string `json:"cvv" binding:"required,numeric"`
	CardHolderName string `json:"card_holder_name" binding:"max=100"`
	CardType       string `json:"card_type" binding:"omitempty,oneof=credit debit"`
}

type createOrderRequest struct {
	Items               []orderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod       string             `json:"payment_method" binding:"required,oneof=cod upi card"`
	DeliveryAddress     string             `json:"delivery_address" binding:"required,max=500"`
	SpecialInstructions string             `json:"special_instructions" binding:"max=500"`
	UPIDetails          *upiRequest        `json:"upi_details"`
	CardDetails         *cardRequest       `json:"card_details"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=1000"`
}

func (r *upiRequest) toInput() *service.UPIInput {
	if r == nil {
		return nil
	}
	return &service.UPIInput{ID: r.UPIID, App: r.UPIApp}
}

func (r *cardRequest) toInput() *service.CardInput {
	if r == nil {
		return nil
	}
	return &service.CardInput{
		Number:      r.CardNumber,
		ExpiryMonth: r.ExpiryMonth,
		ExpiryYear:  r.ExpiryYear,
		CVV:         r.CVV,
		HolderName:  r.CardHolderName,
		Type:        r.CardType,
	}
}

// paymentSucceeded 货到付款以 pending 视为成功下单
func paymentSucceeded(p *model.Payment) bool {
	if p == nil {
		return false
	}
	return p.Status == model.TransactionCompleted ||
		(p.Method == model.PaymentMethodCOD && p.Status == model.TransactionPending)
}

// CreateOrder 下单并发起支付
// @Summary 下单
// @Description 扣减库存、创建订单并调用模拟支付网关；支付失败时订单保持 pending
// @Tags 订单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "幂等键"
// @Param request body createOrderRequest true "订单信息"
// @Success 201 {object} response.Response{data=service.CheckoutResult}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	switch {
	case req.PaymentMethod == string(model.PaymentMethodUPI) && req.UPIDetails == nil:
		response.BadRequest(c, "upi_details is required for upi payments")
		return
	case req.PaymentMethod == string(model.PaymentMethodCard) && req.CardDetails == nil:
		response.BadRequest(c, "card_details is required for card payments")
		return
	}

	lines := make([]service.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = service.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity, Notes: it.Notes}
	}
	res, err := h.orderService.PlaceOrder(c.Request.Context(), service.PlaceOrderInput{
		Items:               lines,
		PaymentMethod:       model.PaymentMethod(req.PaymentMethod),
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
		UPI:                 req.UPIDetails.toInput(),
		Card:                req.CardDetails.toInput(),
		IdempotencyKey:      c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, gin.H{
		"order":      res.Order,
		"payment":    res.Payment,
		"is_success": paymentSucceeded(res.Payment),
		"replayed":   res.Replayed,
	})
}

// ListMyOrders 当前用户的订单
// @Summary 我的订单
// @Tags 订单
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.Page}
// @Router /api/v1/orders/my-orders [get]
func (h *Handler) ListMyOrders(c *gin.Context) {
	q := pageQuery(c)
	list, total, err := h.orderService.ListMine(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, pageResult(q, total, list))
}

// GetOrder 订单详情
// @Summary 订单详情
// @Tags 订单
// @Security BearerAuth
// @Param id path string true "订单ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}

// CancelOrder 取消订单
// @Summary 取消订单
// @Description 归还库存；不会自动发起退款
// @Tags 订单
// @Accept json
// @Security BearerAuth
// @Param id path string true "订单ID"
// @Param request body cancelOrderRequest false "取消原因"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/orders/{id}/cancel [put]
func (h *Handler) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	o, err := h.orderService.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}

// UpdateOrderStatus 管理员更新订单状态
// @Summary 更新订单状态
// @Tags 订单
// @Accept json
// @Security BearerAuth
// @Param id path string true "订单ID"
// @Param request body updateStatusRequest true "目标状态"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/orders/{id}/status [put]
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), model.OrderStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}

// ReviewOrder 评价已送达订单
// @Summary 评价订单
// @Tags 订单
// @Accept json
// @Security BearerAuth
// @Param id path string true "订单ID"
// @Param request body reviewRequest true "评价"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/orders/{id}/review [post]
func (h *Handler) ReviewOrder(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	o, err := h.orderService.Review(c.Request.Context(), c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, o)
}
