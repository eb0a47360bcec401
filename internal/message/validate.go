package message

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shineum/mailpipe/internal/email"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their manifest names (from, to, ...).
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// validateRequired checks the mandatory header fields and returns a
// MissingRequiredFieldError for the first one that is empty.
func validateRequired(in email.Input) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &MissingRequiredFieldError{Field: fieldErrs[0].Field()}
	}
	return err
}
