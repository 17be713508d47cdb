package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/config"
)

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, #
// or ? survive URL parsing. Inside Docker, localhost resolves to
// host.docker.internal.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		url.QueryEscape(sslMode),
	)
}

// connect returns a pool for source. With a connection manager the pool is
// shared and owned by the manager; without one the caller owns it.
func connect(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, source string) (pool *pgxpool.Pool, owned bool, err error) {
	connStr := buildConnectionString(cfg)

	if connMgr == nil {
		pool, err := pgxpool.New(ctx, connStr)
		if err != nil {
			return nil, false, fmt.Errorf("connect to postgres: %w", err)
		}
		return pool, true, nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, source, connStr, datasource.CreatePostgresPool)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	pool, err = datasource.GetPostgresPool(connector)
	if err != nil {
		return nil, false, fmt.Errorf("failed to extract postgres pool: %w", err)
	}
	return pool, false, nil
}
