// Package validate is the single write-surface gate: every tool-protocol and
// HTTP input passes through it before reaching the store. It layers muninn's
// injection rules (shell-dangerous characters, encoded traversal, length
// caps) on top of go-playground/validator's declarative tags.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Length caps per field class.
const (
	MaxPathLength    = 500
	MaxTextLength    = 1000
	MaxContentLength = 10000
)

// shellDangerous are characters that must never reach a string that could be
// interpolated into a shell or subprocess context downstream.
const shellDangerous = "`$(){}|;&<>\\"

// ValidationError reports a rejected field with its path and a human message.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())

	// safe_text: no shell-dangerous characters.
	_ = val.RegisterValidation("safe_text", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), shellDangerous)
	})

	// safe_path: no shell-dangerous characters and no traversal, checked
	// after one round of URL decoding so %2e%2e does not slip through.
	_ = val.RegisterValidation("safe_path", func(fl validator.FieldLevel) bool {
		return pathIsSafe(fl.Field().String())
	})

	return val
}

func pathIsSafe(path string) bool {
	if strings.ContainsAny(path, shellDangerous) {
		return false
	}
	decoded := path
	if d, err := url.QueryUnescape(path); err == nil {
		decoded = d
	}
	return !strings.Contains(decoded, "..")
}

// Struct validates a tagged request struct and translates the first failure
// into a ValidationError with a readable message.
func Struct(req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if ok := errorsAs(err, &fieldErrs); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:   fe.Namespace(),
			Message: describe(fe),
		}
	}
	return &ValidationError{Field: "", Message: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "safe_text":
		return "contains shell-dangerous characters"
	case "safe_path":
		return "contains shell-dangerous characters or path traversal"
	case "max":
		return fmt.Sprintf("exceeds maximum length %s", fe.Param())
	case "min":
		return fmt.Sprintf("below minimum %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// errorsAs is a tiny indirection so the validator dependency stays contained.
func errorsAs(err error, target *validator.ValidationErrors) bool {
	e, ok := err.(validator.ValidationErrors)
	if ok {
		*target = e
	}
	return ok
}

// Text checks a free-form string field directly (used for ad-hoc inputs that
// do not arrive in a struct).
func Text(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return &ValidationError{Field: field, Message: fmt.Sprintf("exceeds maximum length %d", maxLen)}
	}
	if strings.ContainsAny(value, shellDangerous) {
		return &ValidationError{Field: field, Message: "contains shell-dangerous characters"}
	}
	return nil
}

// Path checks a path field directly.
func Path(field, value string) error {
	if len(value) > MaxPathLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("exceeds maximum length %d", MaxPathLength)}
	}
	if !pathIsSafe(value) {
		return &ValidationError{Field: field, Message: "contains shell-dangerous characters or path traversal"}
	}
	return nil
}
