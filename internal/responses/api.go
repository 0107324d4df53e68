package responses

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StandardAPIResponse represents the standardized success envelope. Errors
// are rendered as problem documents by the HTTP error handler.
type StandardAPIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ApiResponse writes the envelope with an explicit status code
func ApiResponse(c echo.Context, statusCode int, message string, data interface{}, meta interface{}) error {
	return c.JSON(statusCode, StandardAPIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
		Meta:    meta,
	})
}

// Success writes a 200 envelope
func Success(c echo.Context, message string, data interface{}) error {
	return ApiResponse(c, http.StatusOK, message, data, nil)
}

// SuccessWithMeta writes a 200 envelope with metadata
func SuccessWithMeta(c echo.Context, message string, data interface{}, meta interface{}) error {
	return ApiResponse(c, http.StatusOK, message, data, meta)
}

// Created writes a 201 envelope
func Created(c echo.Context, message string, data interface{}) error {
	return ApiResponse(c, http.StatusCreated, message, data, nil)
}
