package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/food-order/docs"
	"github.com/d60-Lab/food-order/internal/api/handler"
	"github.com/d60-Lab/food-order/internal/api/middleware"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Handler     *handler.Handler
	Tokens      *middleware.TokenIssuer
	RateLimiter *middleware.RateLimiter
	ServiceName string
}

// NewRouter 注册全部 /api/v1 路由
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestLogger())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	h := d.Handler
	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1", middleware.Auth(d.Tokens))
	limited := []gin.HandlerFunc{}
	if d.RateLimiter != nil {
		limited = append(limited, d.RateLimiter.Middleware())
	}
	admin := middleware.RequireAdmin()

	orders := v1.Group("/orders")
	{
		orders.POST("", append(limited, h.CreateOrder)...)
		orders.GET("/my-orders", h.ListMyOrders)
		orders.GET("/:id", h.GetOrder)
		orders.PUT("/:id/cancel", h.CancelOrder)
		orders.PUT("/:id/status", admin, h.UpdateOrderStatus)
		orders.POST("/:id/review", h.ReviewOrder)
		orders.POST("/:id/request-refund", h.RequestOrderRefund)
	}

	payments := v1.Group("/payments")
	{
		payments.POST("/upi", append(limited, h.PayUPI)...)
		payments.POST("/card", append(limited, h.PayCard)...)
		payments.POST("/cod", append(limited, h.PayCOD)...)
		payments.GET("/my/payments", h.ListMyPayments)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:transactionId/refund", h.RequestPaymentRefund)
		payments.PUT("/:transactionId/refund/approve", admin, h.ApprovePaymentRefund)
		payments.PUT("/:transactionId/refund/reject", admin, h.RejectPaymentRefund)
	}

	adminGroup := v1.Group("/admin", admin)
	{
		adminGroup.GET("/refund-requests", h.ListRefundRequests)
		adminGroup.PUT("/orders/:id/update-refund", h.UpdateOrderRefund)
	}
	return r
}
