package postgres

import (
	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "prefer", "require", "verify-ca", "verify-full"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "prefer"
}

// FromMap creates a Config from a source config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		SSLMode: DefaultSSLMode(),
	}

	var err error
	if cfg.Host, err = datasource.RequireString(config, datasource.KeyHost, "server"); err != nil {
		return nil, err
	}
	if cfg.Port, err = datasource.MapInt(config, datasource.KeyPort, DefaultPort()); err != nil {
		return nil, err
	}
	if cfg.User, err = datasource.RequireString(config, datasource.KeyUser, "username"); err != nil {
		return nil, err
	}
	cfg.Password = datasource.MapString(config, datasource.KeyPassword)
	if cfg.Database, err = datasource.RequireString(config, datasource.KeyDatabase, "name"); err != nil {
		return nil, err
	}
	if sslMode := datasource.MapString(config, datasource.KeySSLMode, "sslmode"); sslMode != "" {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}
