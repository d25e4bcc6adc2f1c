package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"shipfilter/internal/filterspec"
	"shipfilter/internal/pipeline"
	"shipfilter/internal/store"
)

type AppError struct {
	Code    string                   `json:"code"`
	Status  int                      `json:"-"`
	Message string                   `json:"message"`
	Details []filterspec.ErrorDetail `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func InvalidPayload(msg string) *AppError {
	return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, msg)
}

// statusOf maps filter error codes to HTTP statuses.
func statusOf(code filterspec.ErrorCode) int {
	switch code {
	case filterspec.CodeSchemaChanged, filterspec.CodeTokenHashMismatch:
		return fiber.StatusConflict
	case filterspec.CodeTokenInvalidOrExpired:
		return fiber.StatusForbidden
	case filterspec.CodeConfirmationRequired:
		return fiber.StatusPreconditionRequired
	default:
		return fiber.StatusUnprocessableEntity
	}
}

// FromError converts any error returned by the pipeline into an AppError.
// Unknown errors yield nil.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var fe *filterspec.Error
	if errors.As(err, &fe) {
		return &AppError{Code: string(fe.Code), Status: statusOf(fe.Code), Message: fe.Message, Details: fe.Details}
	}
	switch {
	case errors.Is(err, store.ErrUnknownTable):
		return NewAppError("UNKNOWN_TABLE", fiber.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrNoDatabase):
		return NewAppError("NO_DATABASE", fiber.StatusServiceUnavailable, "No database is configured")
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewAppError(fiberCode(fiberErr.Code), fiberErr.Code, fiberErr.Message)
	}
	return nil
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusBadRequest:
		return "INVALID_PAYLOAD"
	}
	return "HTTP_ERROR"
}

// ErrorHandler renders every error as an ErrorResponse envelope.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr := FromError(err); appErr != nil {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: &AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}
