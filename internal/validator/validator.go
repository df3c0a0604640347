package validator

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// plainDecimal matches unsigned decimals without exponent notation, so the
// digit count is bounded by the string length.
var plainDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// "notblank" rejects whitespace-only strings such as shop ids.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// "rcnaddr" accepts 0x-prefixed 20-byte hex addresses in any letter case.
	_ = v.RegisterValidation("rcnaddr", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return IsAddress(str)
	})

	// "usdamount" accepts plain non-negative decimal strings such as "120" or "49.99".
	_ = v.RegisterValidation("usdamount", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		str = strings.TrimSpace(str)
		if !plainDecimal.MatchString(str) {
			return false
		}
		_, err := decimal.NewFromString(str)
		return err == nil
	})

	return v
}

// IsAddress reports whether s is a 0x-prefixed 40 hex digit address.
func IsAddress(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}
