// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard error payload. Code carries a stable,
// machine-readable error identifier (e.g. "ForbiddenTransition").
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorCode writes a JSON error response with a stable error code
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, "ValidationError", message)
}

// WriteNotFound writes a not found error response (404 Not Found)
func WriteNotFound(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusNotFound, "NotFound", "resource not found")
}

// WriteForbidden writes a forbidden error response (403 Forbidden)
func WriteForbidden(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusForbidden, "Forbidden", "access denied")
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteErrorCode(w, http.StatusInternalServerError, "InternalError", err.Error())
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteOK writes the bare {"status":"ok"} acknowledgment.
func WriteOK(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
