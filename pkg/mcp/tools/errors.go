package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as a tool result so the client can read and act on it
// instead of seeing a bare protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for errors the caller can fix (bad parameters, unknown dataset).
// System failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// IsUserError reports whether err should be shown to the caller as a tool
// error result rather than failing the call.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.IsValidation(err) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrNoSourcesConfigured) ||
		errors.Is(err, apperrors.ErrNoDataFetched)
}

// resultForError converts a service error. User errors become error results;
// anything else is returned as a Go error.
func resultForError(err error) (*mcp.CallToolResult, error) {
	if IsUserError(err) {
		return NewErrorResult(apperrors.Code(err), err.Error()), nil
	}
	return nil, err
}
