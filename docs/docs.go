// Package docs 为 /swagger 提供 OpenAPI 2.0 文档。
// 文档按 swag 的输出格式手工维护，需与 handler 上的注解及路由表同步。
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/orders": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "扣减库存、创建订单并调用模拟支付网关；支付失败时订单保持 pending",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["订单"],
                "summary": "下单",
                "parameters": [
                    {"type": "string", "description": "幂等键", "name": "Idempotency-Key", "in": "header"},
                    {"description": "订单信息", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.createOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/orders/my-orders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["订单"],
                "summary": "我的订单",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "description": "每页数量", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/orders/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["订单"],
                "summary": "订单详情",
                "parameters": [{"type": "string", "description": "订单ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/orders/{id}/cancel": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "归还库存；不会自动发起退款",
                "tags": ["订单"],
                "summary": "取消订单",
                "parameters": [
                    {"type": "string", "description": "订单ID", "name": "id", "in": "path", "required": true},
                    {"description": "取消原因", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/handler.cancelOrderRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/orders/{id}/status": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["订单"],
                "summary": "更新订单状态",
                "parameters": [
                    {"type": "string", "description": "订单ID", "name": "id", "in": "path", "required": true},
                    {"description": "目标状态", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.updateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/orders/{id}/review": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["订单"],
                "summary": "评价订单",
                "parameters": [
                    {"type": "string", "description": "订单ID", "name": "id", "in": "path", "required": true},
                    {"description": "评价", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.reviewRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/orders/{id}/request-refund": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["退款"],
                "summary": "申请退款",
                "parameters": [
                    {"type": "string", "description": "订单ID", "name": "id", "in": "path", "required": true},
                    {"description": "退款原因", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.refundRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/admin/refund-requests": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["管理"],
                "summary": "退款申请列表",
                "parameters": [
                    {"enum": ["requested", "approved", "denied"], "type": "string", "default": "requested", "description": "退款状态", "name": "status", "in": "query"},
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "description": "每页数量", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/admin/orders/{id}/update-refund": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["管理"],
                "summary": "处理退款申请",
                "parameters": [
                    {"type": "string", "description": "订单ID", "name": "id", "in": "path", "required": true},
                    {"description": "处理结果", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.updateRefundRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/upi": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["支付"],
                "summary": "UPI 支付",
                "parameters": [{"description": "UPI 支付信息", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.payUPIRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/card": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["支付"],
                "summary": "银行卡支付",
                "parameters": [{"description": "银行卡信息", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.payCardRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/cod": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["支付"],
                "summary": "货到付款",
                "parameters": [{"description": "订单", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.payCODRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/my/payments": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["支付"],
                "summary": "我的支付记录",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "description": "每页数量", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["支付"],
                "summary": "支付详情",
                "parameters": [{"type": "string", "description": "支付ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/{transactionId}/refund": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["退款"],
                "summary": "按流水号申请退款",
                "parameters": [
                    {"type": "string", "description": "支付流水号", "name": "transactionId", "in": "path", "required": true},
                    {"description": "退款原因", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.refundRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/{transactionId}/refund/approve": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["退款"],
                "summary": "批准退款",
                "parameters": [
                    {"type": "string", "description": "支付流水号", "name": "transactionId", "in": "path", "required": true},
                    {"description": "处理意见", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/handler.refundDecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/payments/{transactionId}/refund/reject": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["退款"],
                "summary": "拒绝退款",
                "parameters": [
                    {"type": "string", "description": "支付流水号", "name": "transactionId", "in": "path", "required": true},
                    {"description": "处理意见", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/handler.refundDecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        }
    },
    "definitions": {
        "response.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "data": {},
                "message": {"type": "string"}
            }
        },
        "handler.orderItemRequest": {
            "type": "object",
            "required": ["product_id", "quantity"],
            "properties": {
                "notes": {"type": "string", "maxLength": 500},
                "product_id": {"type": "string"},
                "quantity": {"type": "integer", "minimum": 1}
            }
        },
        "handler.upiRequest": {
            "type": "object",
            "required": ["upi_app", "upi_id"],
            "properties": {
                "upi_app": {"type": "string", "enum": ["gpay", "phonepe", "paytm", "bhim", "amazonpay", "other"]},
                "upi_id": {"type": "string"}
            }
        },
        "handler.cardRequest": {
            "type": "object",
            "required": ["card_number", "cvv", "expiry_month", "expiry_year"],
            "properties": {
                "card_holder_name": {"type": "string", "maxLength": 100},
                "card_number": {"type": "string"},
                "card_type": {"type": "string", "enum": ["credit", "debit"]},
                "cvv": {"type": "string"},
                "expiry_month": {"type": "integer", "maximum": 12, "minimum": 1},
                "expiry_year": {"type": "integer"}
            }
        },
        "handler.createOrderRequest": {
            "type": "object",
            "required": ["delivery_address", "items", "payment_method"],
            "properties": {
                "card_details": {"$ref": "#/definitions/handler.cardRequest"},
                "delivery_address": {"type": "string", "maxLength": 500},
                "items": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/handler.orderItemRequest"}},
                "payment_method": {"type": "string", "enum": ["cod", "upi", "card"]},
                "special_instructions": {"type": "string", "maxLength": 500},
                "upi_details": {"$ref": "#/definitions/handler.upiRequest"}
            }
        },
        "handler.cancelOrderRequest": {
            "type": "object",
            "properties": {"reason": {"type": "string", "maxLength": 500}}
        },
        "handler.updateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {"status": {"type": "string", "enum": ["pending", "confirmed", "preparing", "out-for-delivery", "delivered", "cancelled"]}}
        },
        "handler.reviewRequest": {
            "type": "object",
            "required": ["rating"],
            "properties": {
                "comment": {"type": "string", "maxLength": 1000},
                "rating": {"type": "integer", "maximum": 5, "minimum": 1}
            }
        },
        "handler.refundRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {"reason": {"type": "string", "maxLength": 500}}
        },
        "handler.refundDecisionRequest": {
            "type": "object",
            "properties": {"admin_response": {"type": "string", "maxLength": 500}}
        },
        "handler.updateRefundRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "admin_response": {"type": "string", "maxLength": 500},
                "status": {"type": "string", "enum": ["approved", "denied"]}
            }
        },
        "handler.payUPIRequest": {
            "type": "object",
            "required": ["order_id", "upi_app", "upi_id"],
            "properties": {
                "order_id": {"type": "string"},
                "upi_app": {"type": "string"},
                "upi_id": {"type": "string"}
            }
        },
        "handler.payCardRequest": {
            "type": "object",
            "required": ["order_id", "card_number", "cvv", "expiry_month", "expiry_year"],
            "properties": {
                "card_holder_name": {"type": "string"},
                "card_number": {"type": "string"},
                "card_type": {"type": "string"},
                "cvv": {"type": "string"},
                "expiry_month": {"type": "integer"},
                "expiry_year": {"type": "integer"},
                "order_id": {"type": "string"}
            }
        },
        "handler.payCODRequest": {
            "type": "object",
            "required": ["order_id"],
            "properties": {"order_id": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Food Order API",
	Description:      "订单、支付与退款生命周期服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
