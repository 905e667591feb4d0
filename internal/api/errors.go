package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/osmp/pkg/osmp"
)

func writeNotFound(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, param, "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeStoreError maps a container error to a status code.
func writeStoreError(c *echo.Context, err error, param string) error {
	switch {
	case errors.Is(err, osmp.ErrNotFound):
		return writeNotFound(c, err.Error(), param)
	case errors.Is(err, osmp.ErrClosed):
		return writeError(c, http.StatusServiceUnavailable, "unavailable_error", "container is not mounted", param, "closed")
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), param, "")
	}
}
