package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrConnectionRejected is returned when the identity server answered a
// connection test but could not reach the datastore
var ErrConnectionRejected = errors.New("identity server could not connect to the datastore")

// ErrorCategory represents the classification of an error
type ErrorCategory int

const (
	ErrorCategoryAuth ErrorCategory = iota
	ErrorCategoryPermission
	ErrorCategoryNotFound
	ErrorCategoryConflict
	ErrorCategoryValidation
	ErrorCategoryNetwork
	ErrorCategoryTimeout
	ErrorCategoryRateLimit
	ErrorCategoryServer
	ErrorCategoryUnknown
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryAuth:
		return "authentication"
	case ErrorCategoryPermission:
		return "permission"
	case ErrorCategoryNotFound:
		return "not_found"
	case ErrorCategoryConflict:
		return "conflict"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryNetwork:
		return "network"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryRateLimit:
		return "rate_limit"
	case ErrorCategoryServer:
		return "server"
	default:
		return "unknown"
	}
}

// APIError is a non-2xx answer from the identity server. Message and
// Description come from the server's error body and may be empty.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
	TraceID     string `json:"traceId,omitempty"`
}

// Error implements error
func (e *APIError) Error() string {
	text := e.Message
	if e.Description != "" {
		if text != "" {
			text += ": "
		}
		text += e.Description
	}
	if text == "" {
		text = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("identity server returned %d: %s", e.StatusCode, text)
}

// ErrorMessage returns the server supplied message
func (e *APIError) ErrorMessage() string {
	return e.Message
}

// ErrorDescription returns the server supplied description
func (e *APIError) ErrorDescription() string {
	return e.Description
}

// Category classifies the error by status code
func (e *APIError) Category() ErrorCategory {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrorCategoryAuth
	case e.StatusCode == http.StatusForbidden:
		return ErrorCategoryPermission
	case e.StatusCode == http.StatusNotFound:
		return ErrorCategoryNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrorCategoryConflict
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrorCategoryRateLimit
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity:
		return ErrorCategoryValidation
	case e.StatusCode >= 500:
		return ErrorCategoryServer
	default:
		return ErrorCategoryUnknown
	}
}

// newAPIError builds an APIError from a response body. Bodies that are not
// the server's JSON error shape are kept as the description.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if len(body) == 0 {
		return apiErr
	}
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Description = strings.TrimSpace(string(body))
	}
	apiErr.StatusCode = statusCode
	return apiErr
}

// ClassifyError determines the error category of any client error
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	return ErrorCategoryUnknown
}

// IsNotFound reports whether err is a 404 from the identity server
func IsNotFound(err error) bool {
	return ClassifyError(err) == ErrorCategoryNotFound
}
