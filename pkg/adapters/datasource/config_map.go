package datasource

import (
	"fmt"

	"github.com/spf13/cast"
)

// Config map keys shared by the adapters.
const (
	KeyHost                   = "host"
	KeyPort                   = "port"
	KeyDatabase               = "database"
	KeyUser                   = "user"
	KeyPassword               = "password"
	KeySSLMode                = "ssl_mode"
	KeyPath                   = "path"
	KeyEncrypt                = "encrypt"
	KeyTrustServerCertificate = "trust_server_certificate"
	KeyParams                 = "params"
)

// MapString returns the first non-empty string among keys.
func MapString(config map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := config[k]; ok && v != nil {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// RequireString is MapString that fails when the value is absent.
func RequireString(config map[string]any, key string, alt ...string) (string, error) {
	s := MapString(config, append([]string{key}, alt...)...)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// MapInt reads an integer from YAML ints, JSON floats or numeric strings.
// def is returned when the key is absent.
func MapInt(config map[string]any, key string, def int) (int, error) {
	v, ok := config[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// MapBool reads a boolean from bools or "true"/"false" strings.
func MapBool(config map[string]any, key string, def bool) bool {
	v, ok := config[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// MapParams reads the free-form driver parameters.
func MapParams(config map[string]any) map[string]string {
	v, ok := config[KeyParams]
	if !ok || v == nil {
		return nil
	}
	out, err := cast.ToStringMapStringE(v)
	if err != nil {
		return nil
	}
	return out
}
