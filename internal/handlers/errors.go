package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ad/go-hooks-academy/internal/services"
	"github.com/ad/go-hooks-academy/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorResponse struct {
	Message string `json:"message"`
}

func badRequest(message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, message)
}

// ErrorHandler renders every error returned by a route as {message}.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	logger = logger.With().Str("component", "http").Logger()
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if werr := writeError(c, logger, err); werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}

func writeError(c echo.Context, logger zerolog.Logger, err error) error {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Msg("request failed")
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, errorResponse{Message: message})
}

func classify(err error) (int, string) {
	var notFound *store.NotFoundError
	var httpErr *echo.HTTPError

	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, store.ErrUsernameTaken):
		return http.StatusConflict, "Username already exists"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &httpErr):
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
