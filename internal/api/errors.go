package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON encodes v as the response body. A nil v sends headers only.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // The client may already be gone
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// sessionErrors maps client sentinel errors to HTTP responses, first match wins.
var sessionErrors = []struct {
	target error
	status int
	code   string
}{
	{pubsub.ErrInvalidConfig, http.StatusBadRequest, ErrCodeValidation},
	{pubsub.ErrInvalidTopic, http.StatusBadRequest, ErrCodeValidation},
	{pubsub.ErrAlreadyConnected, http.StatusConflict, ErrCodeConflict},
	{pubsub.ErrNotConnected, http.StatusConflict, ErrCodeConflict},
	{pubsub.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

// writeSessionError answers with the mapping for err, or 500.
func writeSessionError(w http.ResponseWriter, err error) {
	for _, m := range sessionErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	writeInternalError(w, err.Error())
}
