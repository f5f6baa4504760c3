package handler

import (
    "net/http"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo so handlers
// can call c.Validate on bound request bodies.
type RequestValidator struct {
    v *validator.Validate
}

// NewRequestValidator returns a validator that reports fields by their
// json names.
func NewRequestValidator() *RequestValidator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error {
    return rv.v.Struct(i)
}

// fieldErrors flattens validator errors into field -> rule pairs.
func fieldErrors(err error) map[string]string {
    verrs, ok := err.(validator.ValidationErrors)
    if !ok {
        return nil
    }
    out := make(map[string]string, len(verrs))
    for _, fe := range verrs {
        out[fe.Field()] = fe.Tag()
    }
    return out
}

// bindAndValidate binds the body into req and runs struct validation.
// On failure it writes the 400 response itself and returns ok=false.
func bindAndValidate(c echo.Context, req any) (bool, error) {
    if err := c.Bind(req); err != nil {
        return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "INVALID_BODY", "message": "invalid request body"})
    }
    if err := c.Validate(req); err != nil {
        return false, c.JSON(http.StatusBadRequest, echo.Map{
            "error":   "INVALID_BODY",
            "message": "request failed validation",
            "fields":  fieldErrors(err),
        })
    }
    return true, nil
}
