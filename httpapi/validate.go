package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError carries the user-facing text of the first failed rule.
type validationError struct {
	detail string
}

func (e *validationError) Error() string { return e.detail }

func (e *validationError) Unwrap() error { return errBadRequest }

func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errBadRequest
	}

	first := fieldErrs[0]
	var detail string
	switch first.Tag() {
	case "required":
		detail = fmt.Sprintf("Field '%s' is required", first.Field())
	case "max":
		detail = fmt.Sprintf("Field '%s' must be at most %s characters long", first.Field(), first.Param())
	default:
		detail = fmt.Sprintf("Field '%s' is invalid", first.Field())
	}
	return &validationError{detail: detail}
}
