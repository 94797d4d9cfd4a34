package middleware

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct checks the `validate` tags of a decoded request body.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
