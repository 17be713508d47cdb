package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusFor maps a service error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrNoSourcesConfigured), errors.Is(err, apperrors.ErrNoDataFetched):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrSourceUnavailable), errors.Is(err, apperrors.ErrSourceQueryFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteError renders err with its status and code. Internal errors are
// logged and their detail is withheld from the client.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := StatusFor(err)
	code := apperrors.Code(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		if code == "" {
			code = "internal_error"
		}
		msg = "internal server error"
	}
	if encErr := ErrorResponse(w, status, code, msg); encErr != nil {
		logger.Error("Failed to encode error response", zap.Error(encErr))
	}
}

// decodeJSON reads a request body into dst, rejecting unknown fields.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if encErr := ErrorResponse(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err)); encErr != nil {
			logger.Error("Failed to encode error response", zap.Error(encErr))
		}
		return false
	}
	return true
}
