package serverutils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError carries a client-facing message for a bad request body.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateRequest runs struct tag validation on a request body.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Message: fmt.Sprintf("field %q failed on rule %q", fe.Field(), fe.Tag())}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
