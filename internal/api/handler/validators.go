package handler

import (
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	upiIDPattern      = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)
	cardNumberPattern = regexp.MustCompile(`^[0-9][0-9 ]*$`)
)

// RegisterValidators 在 gin 的校验引擎上注册 upi_id / card_number 规则。
// 卡号只校验字符集，长度、有效期与 CVV 由支付网关判定。
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("upi_id", func(fl validator.FieldLevel) bool {
		return upiIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("card_number", func(fl validator.FieldLevel) bool {
		return cardNumberPattern.MatchString(fl.Field().String())
	})
}
