// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("product_code", validateProductCode)
	validate.RegisterValidation("sku_code", validateSkuCode)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// Product codes are seven digits followed by P; the site presents them
// under various capitalization patterns.
func validateProductCode(fl validator.FieldLevel) bool {
	code := strings.ToUpper(fl.Field().String())
	matched, _ := regexp.MatchString(`^\d{7}P$`, code)
	return matched
}

func validateSkuCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) < 5 || len(code) > 16 {
		return false
	}
	matched, _ := regexp.MatchString(`^[0-9A-Za-z]+$`, code)
	return matched
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "product_code":
		return "Product codes are seven digits followed by P"
	case "sku_code":
		return "SKU codes are 5-16 alphanumeric characters"
	default:
		return e.Field() + " is invalid"
	}
}
