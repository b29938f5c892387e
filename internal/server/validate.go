package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/MrEthical07/notevault/password"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// requestValidator adapts validator/v10 to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
	policy   password.Policy
}

func newRequestValidator(policy password.Policy) (*requestValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	err := registerValidations(v, map[string]validator.Func{
		"strongpassword": func(fl validator.FieldLevel) bool {
			return policy.Check(fl.Field().String()) == nil
		},
		"mfacode": validateMFACode,
	})
	if err != nil {
		return nil, err
	}
	return &requestValidator{validate: v, policy: policy}, nil
}

func registerValidations(v *validator.Validate, tags map[string]validator.Func) error {
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %q validation: %w", tag, err)
		}
	}
	return nil
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.validate.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &validationError{fields: fieldErrors(verrs, rv)}
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// validateMFACode accepts exactly six ASCII digits.
func validateMFACode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// FieldError is one entry of the errors array in a 400 body.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationError struct {
	fields []FieldError
}

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fieldErrors(verrs validator.ValidationErrors, rv *requestValidator) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: rv.fieldMessage(fe)})
	}
	return out
}

func (rv *requestValidator) fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "strongpassword":
		var perr *password.PolicyError
		if pw, ok := fe.Value().(string); ok && errors.As(rv.policy.Check(pw), &perr) {
			return perr.Error()
		}
		return "does not meet the password policy"
	case "mfacode":
		return "must be a 6-digit code"
	case "base64":
		return "must be base64"
	default:
		return "is invalid"
	}
}
