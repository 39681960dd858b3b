// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"errors"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/goccy/go-json"

	"github.com/listing-sync/backend/internal/apperrors"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldDetails identifies the offending input of a core error.
type FieldDetails struct {
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	WriteJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// WriteAppError writes a structured core error as 422 with its code.
// It reports false if err carries no code.
func WriteAppError(w http.ResponseWriter, err error) bool {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return false
	}

	var details any
	if appErr.Field != "" || appErr.Value != nil {
		details = FieldDetails{Field: appErr.Field, Value: appErr.Value}
	}
	WriteErrorWithDetails(w, http.StatusUnprocessableEntity, string(appErr.Code), appErr.Message, details)
	return true
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v\n%s", err, debug.Stack())
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrSyncFailed    = "sync_failed"
)
