package models

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// IsMissing reports whether a cell holds no usable value: nil, NaN, or blank text.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return len(bytes.TrimSpace(x)) == 0
	}
	return false
}

// ToFloat converts a cell to a finite float64. Numeric text counts as numeric;
// booleans and timestamps do not.
func ToFloat(v any) (float64, bool) {
	if IsMissing(v) {
		return 0, false
	}
	switch x := v.(type) {
	case bool, time.Time:
		return 0, false
	case []byte:
		v = strings.TrimSpace(string(x))
	case string:
		v = strings.TrimSpace(x)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToTime converts a cell to a timestamp. Text is parsed with the common date
// layouts; layouts without a zone are read as UTC.
func ToTime(v any) (time.Time, bool) {
	if IsMissing(v) {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case time.Time:
		return x, true
	case bool, float32, float64:
		return time.Time{}, false
	case []byte:
		v = strings.TrimSpace(string(x))
	case string:
		v = strings.TrimSpace(x)
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ToString renders a cell as text. Missing values render as "".
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// ParseDate parses a user-supplied date bound.
func ParseDate(s string) (time.Time, error) {
	t, ok := ToTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	}
	return t, nil
}
