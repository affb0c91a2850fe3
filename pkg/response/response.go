package response

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/food-order/pkg/logger"
)

// Response 统一响应结构
// Code 为机器可读的 snake_case 错误码，成功时为 "ok"
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Page 分页数据
type Page struct {
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
	List     interface{} `json:"list"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: "ok", Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: "ok", Message: "created", Data: data})
}

// Error 以指定状态码返回错误，并中止后续 handler
func Error(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Response{Code: code, Message: msg})
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, "validation_error", msg)
}

func Unauthorized(c *gin.Context, msg string) {
	Error(c, http.StatusUnauthorized, "unauthorized", msg)
}

func Forbidden(c *gin.Context, msg string) {
	Error(c, http.StatusForbidden, "forbidden", msg)
}

func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, "not_found", msg)
}

func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, "conflict", msg)
}

func TooManyRequests(c *gin.Context, msg string) {
	Error(c, http.StatusTooManyRequests, "rate_limited", msg)
}

// InternalError 记录并上报未预期错误，响应中不暴露细节
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.CaptureException(err)
	}
	Error(c, http.StatusInternalServerError, "internal_error", "internal server error")
}
