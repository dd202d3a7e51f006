package validation

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type structValidator struct{ v *validator.Validate }

func (s *structValidator) Validate(i interface{}) error {
	return s.v.Struct(i)
}

// New returns the echo.Validator wired into the server; request structs
// declare their rules with `validate` tags.
func New() echo.Validator {
	return &structValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}
