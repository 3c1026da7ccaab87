package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/engage/internal/reaction"
)

// handleError maps engage and fiber errors to status codes and a
// {"code", "message"} body.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := errorResponse{Code: "INTERNAL", Message: "internal error"}

	var fe *fiber.Error
	var re *reaction.Error
	switch {
	case errors.As(err, &re):
		body = errorResponse{Code: string(re.Code), Message: re.Message}
		switch re.Code {
		case reaction.ErrCodePostNotFound:
			status = fiber.StatusNotFound
		case reaction.ErrCodeInvalidReaction:
			status = fiber.StatusBadRequest
		case reaction.ErrCodeStoreUnavailable:
			status = fiber.StatusServiceUnavailable
		}
	case errors.As(err, &fe):
		status = fe.Code
		body = errorResponse{Code: codeForStatus(fe.Code), Message: fe.Message}
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return c.Status(status).JSON(body)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	default:
		return "HTTP_" + strconv.Itoa(status)
	}
}
