package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
)

const driverName = "sqlserver"

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	db      *sql.DB
	source  string
	ownedDB bool
}

// NewQueryExecutor creates a SQL Server query executor using the connection manager.
// If connMgr is nil, the executor opens and owns its own pool.
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, source string) (*QueryExecutor, error) {
	connStr := buildConnectionString(cfg)

	if connMgr == nil {
		db, err := sql.Open(driverName, connStr)
		if err != nil {
			return nil, fmt.Errorf("open SQL auth connection: %w", err)
		}
		return newQueryExecutor(db, source, true), nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, source, connStr, datasource.SQLPoolOpener(driverName, "sqlserver"))
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}
	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, err
	}
	return newQueryExecutor(db, source, false), nil
}

func newQueryExecutor(db *sql.DB, source string, owned bool) *QueryExecutor {
	return &QueryExecutor{db: db, source: source, ownedDB: owned}
}

// Query renders q with @pN parameters and TOP (n), and returns every row.
func (e *QueryExecutor) Query(ctx context.Context, q *sqlb.Query) (*models.Table, error) {
	text, args, err := q.Render(sqlb.DialectSQLServer)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows, convertValue)
}

func (e *QueryExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close releases the executor (but NOT the pool if managed).
func (e *QueryExecutor) Close() error {
	if e.ownedDB && e.db != nil {
		return e.db.Close()
	}
	return nil
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
