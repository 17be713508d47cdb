package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a bound value that libinjection flagged.
type InjectionCheckResult struct {
	ParamName   string
	ParamValue  any
	Fingerprint string
}

// InjectionError is the filter validation error returned when a bound value
// is flagged. It unwraps to an apperrors.ErrInvalidFilter validation error.
type InjectionError struct {
	Hit *InjectionCheckResult
	err error
}

func (e *InjectionError) Error() string { return e.err.Error() }

func (e *InjectionError) Unwrap() error { return e.err }

// CheckParameterForInjection runs libinjection over a single bound value.
// Only strings are inspected; other types cannot carry SQL text.
// Returns nil when the value looks clean.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{
			ParamName:   paramName,
			ParamValue:  value,
			Fingerprint: string(fingerprint),
		}
	}
	return nil
}

// CheckAllParameters screens every value in params. Results are ordered by
// parameter name so error messages are stable.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*InjectionCheckResult
	for _, name := range names {
		if r := CheckParameterForInjection(name, params[name]); r != nil {
			results = append(results, r)
		}
	}
	return results
}
