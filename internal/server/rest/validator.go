package rest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var userNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// Validator adapts go-playground/validator to echo.Validator. Field names in
// errors are the JSON names.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return userNamePattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := ValidationError{Errors: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Errors[fe.Field()] = describe(fe)
	}
	return out
}

// ValidationError lists the offending fields of a request payload.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for field, msg := range e.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	sort.Strings(msgs)
	return "validation failed: " + strings.Join(msgs, "; ")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return "must be 3-64 letters, digits, '_', '-' or '.'"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
