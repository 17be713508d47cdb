package mssql

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
)

// Config contains SQL Server connection options. Only SQL Server
// authentication is supported.
type Config struct {
	Host     string
	Port     int
	Database string
	Instance string // named instance, e.g. SQLEXPRESS

	Username string
	Password string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a source config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.Host, err = datasource.RequireString(config, datasource.KeyHost, "server"); err != nil {
		return nil, err
	}
	if cfg.Port, err = datasource.MapInt(config, datasource.KeyPort, DefaultPort()); err != nil {
		return nil, err
	}
	if cfg.Database, err = datasource.RequireString(config, datasource.KeyDatabase, "name"); err != nil {
		return nil, err
	}
	cfg.Instance = datasource.MapString(config, "instance")
	if cfg.Username, err = datasource.RequireString(config, datasource.KeyUser, "username"); err != nil {
		return nil, fmt.Errorf("username is required for SQL authentication")
	}
	cfg.Password = datasource.MapString(config, datasource.KeyPassword)

	cfg.Encrypt = datasource.MapBool(config, datasource.KeyEncrypt, true)
	cfg.TrustServerCertificate = datasource.MapBool(config, datasource.KeyTrustServerCertificate, false)
	if cfg.ConnectionTimeout, err = datasource.MapInt(config, "connection_timeout", DefaultConnectionTimeout()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config has the fields a connection needs.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required for SQL authentication")
	}
	return nil
}
