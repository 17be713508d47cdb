package datasource

import "context"

// PoolConnector abstracts a connection pool across database types
// (pgxpool for PostgreSQL, *sql.DB for SQL Server, MySQL and SQLite).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string
}

// PoolOpener creates a pool for a connection string.
type PoolOpener func(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error)
