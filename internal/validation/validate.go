package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robolist/robolist/internal/apperr"
)

var (
	validate = newValidator()

	resourceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]{0,63}$`)
	usernamePattern     = regexp.MustCompile(`^[a-zA-Z0-9_\-]{3,64}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("resourcename", func(fl validator.FieldLevel) bool {
		return resourceNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates the `validate` tags of a request body.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), apperr.ErrInvalidInput)
	}
	return fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidInput)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s is too long (max %s)", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s is too short (min %s)", field, fe.Param())
	case "email":
		return "invalid email address format"
	case "url":
		return field + " must be a URL"
	case "resourcename":
		return field + " must start with a letter or digit and contain only letters, digits, '_', '.' or '-' (max 64)"
	case "username":
		return field + " must be 3 to 64 letters, digits, '_' or '-'"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, apperr.ErrInvalidInput)
}
