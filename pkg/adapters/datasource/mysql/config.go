package mysql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
)

// Config contains MySQL/MariaDB connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string            // "disable", "preferred", "require", "verify-full"
	Params   map[string]string // extra DSN parameters, e.g. charset
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
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
	if cfg.User, err = datasource.RequireString(config, datasource.KeyUser, "username"); err != nil {
		return nil, err
	}
	cfg.Password = datasource.MapString(config, datasource.KeyPassword)
	if cfg.Database, err = datasource.RequireString(config, datasource.KeyDatabase, "name"); err != nil {
		return nil, err
	}
	cfg.SSLMode = strings.ToLower(datasource.MapString(config, datasource.KeySSLMode, "sslmode"))
	if _, ok := tlsModes[cfg.SSLMode]; !ok {
		return nil, fmt.Errorf("invalid ssl_mode: %s", cfg.SSLMode)
	}
	cfg.Params = datasource.MapParams(config)

	return cfg, nil
}

// tlsModes maps ssl_mode values onto the driver's tls parameter.
var tlsModes = map[string]string{
	"":            "",
	"disable":     "false",
	"preferred":   "preferred",
	"prefer":      "preferred",
	"require":     "skip-verify",
	"verify-full": "true",
}
