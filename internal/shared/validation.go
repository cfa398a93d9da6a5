package shared

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// NewValidator returns a validator with the site's custom tags:
// "phone" (optional plus, 10 to 15 digits) and "otp" (exactly six digits).
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		return otpPattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct validates s and converts the first failing field into a
// *ValidationError. keys maps struct field names to catalog keys.
func ValidateStruct(v *validator.Validate, s any, keys map[string]string) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	field := fieldErrs[0].Field()
	key, ok := keys[field]
	if !ok {
		key = "validation." + strings.ToLower(field[:1]) + field[1:]
	}
	return &ValidationError{Field: field, Key: key}
}
