// Package httpapi implements the ingest front end's HTTP surface:
// POST /api/log, POST /api/logs/batch, GET /api/logs/{device_id},
// GET /api/stats, GET /health, GET /metrics.
package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbusdata/logflow/internal/platform/apperr"
)

// ResponseError is the client-visible error body.
type ResponseError struct {
	Code    string            `json:"code,omitempty"`
	Title   string            `json:"title,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (r ResponseError) Error() string { return r.Message }

// WithError dispatches err to the HTTP response it deserves: validation
// errors are 4xx-class, dependency errors are 5xx-class, everything else
// a generic 500.
func WithError(c *fiber.Ctx, err error) error {
	var validation apperr.ValidationError
	if errors.As(err, &validation) {
		return BadRequest(c, ResponseError{
			Code:    "validation_error",
			Title:   "Validation Error",
			Message: validation.Error(),
			Fields:  map[string]string{validation.Field: validation.Message},
		})
	}

	var unavailable apperr.BackendUnavailable
	if errors.As(err, &unavailable) {
		return ServiceUnavailable(c, ResponseError{
			Code:    "backend_unavailable",
			Title:   "Backend Unavailable",
			Message: unavailable.Error(),
		})
	}

	var transient apperr.TransientBackendError
	if errors.As(err, &transient) {
		return ServiceUnavailable(c, ResponseError{
			Code:    "transient_backend_error",
			Title:   "Transient Backend Error",
			Message: transient.Error(),
		})
	}

	var permanent apperr.PermanentRecordError
	if errors.As(err, &permanent) {
		return UnprocessableEntity(c, ResponseError{
			Code:    "permanent_record_error",
			Title:   "Permanent Record Error",
			Message: permanent.Error(),
		})
	}

	return InternalServerError(c, ResponseError{
		Code:    "internal_error",
		Title:   "Internal Server Error",
		Message: err.Error(),
	})
}

// BadRequest writes a 400 response.
func BadRequest(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// UnprocessableEntity writes a 422 response.
func UnprocessableEntity(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
}

// ServiceUnavailable writes a 503 response.
func ServiceUnavailable(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(body)
}

// InternalServerError writes a 500 response.
func InternalServerError(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}
