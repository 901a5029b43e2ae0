package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// AppError carries an HTTP status alongside the message so services can
// signal "not found" / "forbidden" without importing fiber everywhere.
type AppError struct {
	Status  int
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func NotFoundError(message string) *AppError {
	return NewAppError(fiber.StatusNotFound, message)
}

func ForbiddenError(message string) *AppError {
	return NewAppError(fiber.StatusForbidden, message)
}

func BadRequestError(message string) *AppError {
	return NewAppError(fiber.StatusBadRequest, message)
}

// ErrorHandlerMiddleware converts returned errors into the JSON envelope.
// Unknown errors become 500 without leaking internals.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(ErrorBody{Message: appErr.Message})
		}

		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorBody{
				Message: "Validation failed",
				Errors:  validationErr.Fields,
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorBody{Message: fiberErr.Message})
		}

		return c.Status(fiber.StatusInternalServerError).JSON(ErrorBody{Message: "Internal server error"})
	}
}
