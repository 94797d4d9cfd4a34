package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"habit-wars/middleware"
	"habit-wars/services"
	"habit-wars/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrExpired, fiber.StatusGone},
	{services.ErrOutOfRange, fiber.StatusUnprocessableEntity},
	{services.ErrInvalidInput, fiber.StatusBadRequest},
	{services.ErrInsufficientFunds, fiber.StatusPaymentRequired},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrInvalidState, fiber.StatusConflict},
	{services.ErrConflict, fiber.StatusConflict},
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return fiber.StatusInternalServerError
}

// respondError writes {"error": ...}. Unexpected errors are logged and their
// text is kept out of the response.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		utils.Logger.Error("request_failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// bind decodes and validates a JSON body into req. Failures wrap
// ErrInvalidInput.
func bind(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return fmt.Errorf("%w: invalid request body", services.ErrInvalidInput)
	}
	if err := middleware.ValidateStruct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" failed "+fe.Tag())
		}
		return fmt.Errorf("%w: %s", services.ErrInvalidInput, strings.Join(fields, ", "))
	}
	return nil
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return n
}
