package mssql

import (
	"fmt"
	"net/url"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/config"
)

// buildConnectionString builds a sqlserver:// URL for SQL authentication.
// Credentials are escaped through url.UserPassword.
func buildConnectionString(cfg *Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port),
		RawQuery: query.Encode(),
	}
	if cfg.Instance != "" {
		u.Path = "/" + cfg.Instance
	}
	return u.String()
}

// convertValue turns UNIQUEIDENTIFIER bytes into the canonical GUID text.
// The driver returns them in SQL Server's mixed-endian byte order.
func convertValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok || dbType != "UNIQUEIDENTIFIER" {
		return v
	}
	var id mssqldb.UniqueIdentifier
	if err := id.Scan(b); err != nil {
		return v
	}
	return id.String()
}
