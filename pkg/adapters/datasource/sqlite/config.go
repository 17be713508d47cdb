package sqlite

import (
	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
)

// Config points at a SQLite database file. Sources are opened read-only.
type Config struct {
	Path          string
	BusyTimeoutMS int
}

// DefaultBusyTimeoutMS is how long a read waits on a locked database.
const DefaultBusyTimeoutMS = 5000

// FromMap creates a Config from a source config map.
func FromMap(config map[string]any) (*Config, error) {
	path, err := datasource.RequireString(config, datasource.KeyPath, datasource.KeyDatabase)
	if err != nil {
		return nil, err
	}
	timeout, err := datasource.MapInt(config, "busy_timeout_ms", DefaultBusyTimeoutMS)
	if err != nil {
		return nil, err
	}
	return &Config{Path: path, BusyTimeoutMS: timeout}, nil
}
