package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"cdnapi/internal/fetch"
	"cdnapi/internal/http/middleware"
	"cdnapi/internal/quota"
	"cdnapi/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Quota   *quota.Usage `json:"quota,omitempty"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_INPUT", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeQuotaError is like writeError but attaches the usage snapshot so the
// owner can see how much space remains.
func writeQuotaError(c *fiber.Ctx, qerr *service.QuotaExceededError) error {
	usage := qerr.Usage
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    "QUOTA_EXCEEDED",
			Message: "storage quota exceeded",
			Quota:   &usage,
		},
	}
	return c.Status(fiber.StatusRequestEntityTooLarge).JSON(res)
}

// writeServiceError maps ingestion pipeline errors to the wire. Upstream
// download failures surface as 502 so clients can tell them apart from faults
// in this service.
func writeServiceError(c *fiber.Ctx, err error) error {
	var qerr *service.QuotaExceededError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "invalid input")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "upload not found")
	case errors.As(err, &qerr):
		return writeQuotaError(c, qerr)
	case fetch.IsAuthFailed(err):
		return writeError(c, fiber.StatusUnauthorized, "AUTH_FAILED", "source rejected the download credential")
	case fetch.IsDownloadFailed(err):
		return writeError(c, fiber.StatusBadGateway, "DOWNLOAD_FAILED", "could not download source file")
	case errors.Is(err, service.ErrStorageFailed):
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_FAILED", "could not store file")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
