package service

import "errors"

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("product unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state")
	// ErrReconciliation 订单已提交但支付结果未能落库，需要人工对账
	ErrReconciliation = errors.New("reconciliation required")
)
