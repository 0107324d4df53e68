package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/moogar0880/problems"
)

// ProblemContentType is the media type of RFC 7807 responses
const ProblemContentType = "application/problem+json"

// problemTypes maps status codes to problem type identifiers
var problemTypes = map[int]string{
	http.StatusBadRequest:          "validation_error",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusConflict:            "conflict",
	http.StatusServiceUnavailable:  "unavailable",
	http.StatusInternalServerError: "internal_error",
}

// ProblemErrorHandler renders every error returned by a handler as an
// RFC 7807 problem document. Errors that are not *echo.HTTPError become a
// 500 and their text is not exposed.
func ProblemErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := ""

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			detail = messageOf(he)
		}

		problem := problems.NewStatusProblem(status).
			WithInstance(c.Request().URL.Path).
			WithType(problemType(status))
		if detail != "" {
			problem = problem.WithDetail(detail)
		}

		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err,
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			c.Response().Header().Set(echo.HeaderContentType, ProblemContentType)
			writeErr = c.JSON(status, problem)
		}
		if writeErr != nil {
			logger.Error("failed to write error response", "error", writeErr)
		}
	}
}

func problemType(status int) string {
	if t, ok := problemTypes[status]; ok {
		return t
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func messageOf(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case nil:
		return ""
	case string:
		return m
	case error:
		return m.Error()
	default:
		return fmt.Sprint(m)
	}
}
