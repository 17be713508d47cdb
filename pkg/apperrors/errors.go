package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrCredentialsKeyMismatch = errors.New("source credentials were encrypted with a different key")

	// Query builder validation. Raised before any I/O.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrInvalidLimit      = errors.New("invalid limit")

	// Per-source failures. The fetcher contains these and reports them.
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrSourceQueryFailed  = errors.New("source query failed")
	ErrUnknownSource      = errors.New("unknown source")
	ErrMissingCredentials = errors.New("missing credentials")

	// Combination engine.
	ErrNoSourcesConfigured     = errors.New("no source configurations found")
	ErrNoDataFetched           = errors.New("no source yielded usable data")
	ErrSchemaMismatch          = errors.New("schema mismatch")
	ErrDedupInvariantViolation = errors.New("duplicate identifiers remain after deduplication")
	ErrInvalidStrategy         = errors.New("invalid merge strategy")

	// Analyzer.
	ErrEmptyColumn       = errors.New("no numeric values to analyze")
	ErrColumnNotFound    = errors.New("column not found")
	ErrInvalidSpecLimits = errors.New("invalid specification limits")
	ErrInvalidOutlier    = errors.New("invalid outlier method")
)

// SourceError ties a per-source failure to the source that produced it.
// Kind is one of ErrSourceUnavailable or ErrSourceQueryFailed.
type SourceError struct {
	Source string
	Kind   error
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

// Is matches both the kind and anything the cause matches.
func (e *SourceError) Is(target error) bool {
	return target == e.Kind
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError wraps err as a per-source failure of the given kind.
func NewSourceError(source string, kind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

// ColumnError reports a column problem together with the columns that do exist,
// so callers can suggest a correction.
type ColumnError struct {
	Kind      error
	Column    string
	Available []string
	Detail    string
}

func (e *ColumnError) Error() string {
	msg := fmt.Sprintf("%s: %q", e.Kind, e.Column)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if len(e.Available) > 0 {
		msg += "; available columns: " + strings.Join(e.Available, ", ")
	}
	return msg
}

func (e *ColumnError) Unwrap() error {
	return e.Kind
}

// ValidationError is an input error with the offending value attached.
type ValidationError struct {
	Kind   error
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Invalid builds a ValidationError of the given kind.
func Invalid(kind error, value, reason string) error {
	return &ValidationError{Kind: kind, Value: value, Reason: reason}
}

// IsValidation reports whether err is a caller input problem rather than a
// system failure.
func IsValidation(err error) bool {
	for _, kind := range []error{
		ErrInvalidIdentifier, ErrInvalidFilter, ErrInvalidLimit, ErrInvalidStrategy,
		ErrInvalidSpecLimits, ErrInvalidOutlier, ErrColumnNotFound, ErrEmptyColumn,
		ErrUnknownSource,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Code maps an error to a stable machine-readable code for API responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, ErrInvalidLimit):
		return "invalid_limit"
	case errors.Is(err, ErrInvalidStrategy):
		return "invalid_strategy"
	case errors.Is(err, ErrInvalidSpecLimits):
		return "invalid_spec_limits"
	case errors.Is(err, ErrInvalidOutlier):
		return "invalid_outlier_method"
	case errors.Is(err, ErrNoSourcesConfigured):
		return "no_sources_configured"
	case errors.Is(err, ErrNoDataFetched):
		return "no_data_fetched"
	case errors.Is(err, ErrDedupInvariantViolation):
		return "dedup_invariant_violation"
	case errors.Is(err, ErrEmptyColumn):
		return "empty_column"
	case errors.Is(err, ErrColumnNotFound):
		return "column_not_found"
	case errors.Is(err, ErrUnknownSource):
		return "unknown_source"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrSourceQueryFailed):
		return "source_query_failed"
	default:
		return "internal_error"
	}
}
