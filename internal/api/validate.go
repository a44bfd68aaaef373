package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// limitBody rejects request bodies over n bytes on routes that take small
// JSON payloads.
func limitBody(n int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) > n {
			return fiber.ErrRequestEntityTooLarge
		}
		return c.Next()
	}
}

// bindJSON parses the body into dst and checks its validate tags.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Validation("invalid payload")
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Validation("invalid payload", fieldErrors(err)...)
	}
	return nil
}

func fieldErrors(err error) []apperr.FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]apperr.FieldError, 0, len(ve))
	for _, fe := range ve {
		msg := fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
		switch fe.Tag() {
		case "required":
			msg = fe.Field() + " is required"
		case "max":
			msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		out = append(out, apperr.FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
