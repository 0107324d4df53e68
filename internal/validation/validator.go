// Package validation plugs go-playground/validator into echo
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator implements echo.Validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the console's custom tags:
//
//	propname  a user store property name, usable as a patch path segment
//	jdbcurl   a JDBC connection URL
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil functions
	_ = v.RegisterValidation("propname", validatePropertyName)
	_ = v.RegisterValidation("jdbcurl", validateJDBCURL)

	return &Validator{validate: v}
}

// Validate validates a struct and returns a 400 HTTP error describing the
// first failing field
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, Describe(err)).SetInternal(err)
	}
	return nil
}

// Describe turns validator errors into a readable message
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, describeField(fe))
	}
	return strings.Join(messages, "; ")
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "propname":
		return fmt.Sprintf("%s contains an invalid property name %q", field, fe.Value())
	case "jdbcurl":
		return fmt.Sprintf("%s must be a JDBC URL", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on the %s rule", field, fe.Tag())
	}
}

func validatePropertyName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "" && !strings.ContainsAny(name, "/~ \t\r\n")
}

func validateJDBCURL(fl validator.FieldLevel) bool {
	rest, ok := strings.CutPrefix(fl.Field().String(), "jdbc:")
	return ok && strings.Contains(rest, "://")
}
