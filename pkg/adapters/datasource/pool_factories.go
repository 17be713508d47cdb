package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreatePostgresPool creates a PostgreSQL connection pool
func CreatePostgresPool(ctx context.Context, connString string, config ConnectionManagerConfig) (PoolConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = config.PoolMaxConns
	poolConfig.MinConns = config.PoolMinConns
	poolConfig.MaxConnIdleTime = config.TTL()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return NewPostgresPoolWrapper(pool), nil
}

// SQLPoolOpener returns a PoolOpener for a database/sql driver. The driver
// must be registered by importing it.
func SQLPoolOpener(driverName, dbType string) PoolOpener {
	return func(ctx context.Context, connString string, config ConnectionManagerConfig) (PoolConnector, error) {
		db, err := sql.Open(driverName, connString)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(int(config.PoolMaxConns))
		db.SetMaxIdleConns(int(config.PoolMinConns))
		db.SetConnMaxIdleTime(config.TTL())
		return NewSQLDBWrapper(db, dbType), nil
	}
}

// GetPostgresPool extracts the underlying *pgxpool.Pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.GetPool(), nil
}

// GetSQLDB extracts the underlying *sql.DB from a PoolConnector.
func GetSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*SQLDBWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a database/sql pool wrapper")
	}
	return wrapper.GetDB(), nil
}
