// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON envelope
// responses of the form {success, data?, message?, error?}.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/splvrdge/savr/internal/core"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code. Codes >= 400 mark the envelope as failed.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	b.envelope.Success = code < 400
	return b
}

// Data sets the payload of a successful response.
func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	b.envelope.Data = data
	return b
}

// Message sets the human readable message.
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.envelope.Message = msg
	return b
}

// Detail sets the underlying error text. Callers decide whether it may be
// exposed.
func (b *JSONResponseBuilder) Detail(err error) *JSONResponseBuilder {
	if err != nil {
		b.envelope.Error = err.Error()
	}
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	body, err := json.Marshal(b.envelope)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Internal server error"}`))
		return
	}

	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// OK creates a 200 response carrying data.
func OK(data any) *JSONResponseBuilder {
	return NewJSONResponse().Data(data)
}

// Created creates a 201 response carrying data.
func Created(data any, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusCreated).Data(data).Message(message)
}

// ErrorResponse creates a failed envelope with the given status and message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Message(message)
}

// classifyError maps service errors to a status code and a message that is
// safe to show in any environment.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// validationMessage keeps only the part after the validation marker, which
// describes the offending input and nothing about the server.
func validationMessage(err error) string {
	msg := err.Error()
	marker := core.ErrValidation.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return "Invalid request: " + msg[i+len(marker):]
	}
	return "Invalid request"
}
