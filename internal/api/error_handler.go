package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors with a correlation number without leaking
//     details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, domain.ErrRoomNotFound.Error()
	case errors.Is(err, domain.ErrPollNotFound):
		return http.StatusNotFound, domain.ErrPollNotFound.Error()
	case errors.Is(err, domain.ErrRoomInactive):
		return http.StatusConflict, domain.ErrRoomInactive.Error()
	case errors.Is(err, domain.ErrPollNotActive):
		return http.StatusConflict, domain.ErrPollNotActive.Error()
	case errors.Is(err, domain.ErrNotMember):
		return http.StatusForbidden, domain.ErrNotMember.Error()
	case errors.Is(err, domain.ErrRespondentBarred):
		return http.StatusForbidden, domain.ErrRespondentBarred.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "You are not a member of this classroom."
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, domain.ErrUserExists.Error()
	}

	// Unexpected error: log the real cause with a correlation number, return
	// a generic message carrying the same number.
	n := domain.NextErrorNumber()
	log.Error().
		Err(err).
		Int64("error_number", n).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError,
		fmt.Sprintf("Error Number %d: There was a server error try again.", n)
}
