// Package response defines the JSON envelope returned by every endpoint.
package response

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// FieldError describes one failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Envelope is the uniform success/error body.
type Envelope struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Data      interface{}  `json:"data,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
	Timestamp string       `json:"timestamp"`
}

// successEnvelope always serializes data, so deletions emit "data": null.
type successEnvelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

var now = func() time.Time { return time.Now().UTC() }

func timestamp() string {
	return now().Format(time.RFC3339)
}

func write(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, successEnvelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: timestamp(),
	})
}

// Success writes a 200 envelope.
func Success(c echo.Context, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	return write(c, http.StatusOK, message, data)
}

// Created writes a 201 envelope.
func Created(c echo.Context, message string, data interface{}) error {
	if message == "" {
		message = "created successfully"
	}
	return write(c, http.StatusCreated, message, data)
}

// Updated writes a 200 envelope for a modified resource.
func Updated(c echo.Context, message string, data interface{}) error {
	if message == "" {
		message = "updated successfully"
	}
	return write(c, http.StatusOK, message, data)
}

// Deleted writes a 200 envelope with null data.
func Deleted(c echo.Context, message string) error {
	if message == "" {
		message = "deleted successfully"
	}
	return write(c, http.StatusOK, message, nil)
}

// Error writes a failure envelope with the given status. A zero status means 500.
func Error(c echo.Context, status int, message string, errs ...FieldError) error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return c.JSON(status, NewError(message, errs...))
}

// NewError builds a failure envelope without writing it.
func NewError(message string, errs ...FieldError) Envelope {
	return Envelope{
		Success:   false,
		Message:   message,
		Errors:    errs,
		Timestamp: timestamp(),
	}
}

func NotFound(c echo.Context, message string) error {
	if message == "" {
		message = "resource not found"
	}
	return Error(c, http.StatusNotFound, message)
}

func BadRequest(c echo.Context, message string, errs ...FieldError) error {
	if message == "" {
		message = "bad request"
	}
	return Error(c, http.StatusBadRequest, message, errs...)
}

func Unauthorized(c echo.Context, message string) error {
	if message == "" {
		message = "unauthorized"
	}
	return Error(c, http.StatusUnauthorized, message)
}

func Forbidden(c echo.Context, message string) error {
	if message == "" {
		message = "forbidden"
	}
	return Error(c, http.StatusForbidden, message)
}
