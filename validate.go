package billing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// check runs struct tag validation on req and converts the first failure
// into a ValidationError. All failures are kept in a MultiError under Err.
func (e *Engine) check(req any) error {
	err := e.validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return ValidationError{Field: "request", Message: err.Error(), Err: ErrInvalidInput}
	}

	var all MultiError
	for _, fe := range ve {
		all.Add(fieldError(fe))
	}
	first := fieldError(ve[0])
	first.Err = all
	return first
}

func fieldError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "oneof":
		msg = "must be one of " + fe.Param()
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	case "gt":
		msg = "must be greater than " + fe.Param()
	default:
		msg = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return ValidationError{Field: field, Message: msg, Err: ErrInvalidInput}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func invalid(field, msg string, cause error) error {
	return ValidationError{Field: field, Message: msg, Err: cause}
}
