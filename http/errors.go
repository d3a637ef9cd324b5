// http/errors.go
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/vinizap/myworld/domain"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalid), errors.Is(err, domain.ErrUnconfirmed):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrCycle), errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	resp := ErrorResponse{Error: err.Error(), Code: domain.Code(err)}
	if status >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
		resp.Error = "internal error"
	}
	return c.Status(status).JSON(resp)
}
