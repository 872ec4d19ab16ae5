// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps the domain error taxonomy onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"orti/internal/core"
)

// Error kinds carried in the JSON error body.
const (
	ErrorKindValidation  = "validation"
	ErrorKindStructural  = "structural"
	ErrorKindPersistence = "persistence"
	ErrorKindBadRequest  = "bad_request"
	ErrorKindRateLimit   = "rate_limit"
	ErrorKindInternal    = "internal"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response. A 204 or a nil payload writes no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.payload == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response","kind":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: message, Kind: kind})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, ErrorKindBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, ErrorKindStructural, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, ErrorKindBadRequest, "method not allowed")
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, ErrorKindRateLimit, "rate limit exceeded, please try again later")
}

// ClassifyError maps an error to its status code and kind. Validation is
// checked first: a StructuralError wrapping a validation sentinel (editing a
// calculated category) is the caller's input problem, not a missing record.
func ClassifyError(err error) (int, string) {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, ErrorKindBadRequest
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, ErrorKindValidation
	case core.IsStructural(err), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ErrorKindStructural
	case core.IsPersistence(err):
		return http.StatusBadGateway, ErrorKindPersistence
	}
	return http.StatusInternalServerError, ErrorKindInternal
}

// ErrorFromErr builds the error response for err. Internal errors do not
// leak their message.
func ErrorFromErr(err error) *JSONResponseBuilder {
	status, body := errorBody(err)
	return ErrorResponse(status, body.Kind, body.Error)
}

// errorBody classifies err; internal messages are not exposed.
func errorBody(err error) (int, ErrorBody) {
	status, kind := ClassifyError(err)
	msg := err.Error()
	if kind == ErrorKindInternal {
		msg = "internal error"
	}
	return status, ErrorBody{Error: msg, Kind: kind}
}
