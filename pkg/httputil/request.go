package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteValidationError(w, err.Error())
		return false
	}
	return true
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// RequireNonEmpty validates a required string field, writing a 400 on failure.
func RequireNonEmpty(w http.ResponseWriter, name, value string) bool {
	if value == "" {
		WriteValidationError(w, fmt.Sprintf("%s is required", name))
		return false
	}
	return true
}

// ValidateLength checks a string field length, writing a 400 on failure.
func ValidateLength(w http.ResponseWriter, name, value string, min, max int) bool {
	if len(value) < min || len(value) > max {
		WriteValidationError(w, fmt.Sprintf("%s must be between %d and %d characters", name, min, max))
		return false
	}
	return true
}
