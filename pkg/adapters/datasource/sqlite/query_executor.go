package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
)

const driverName = "sqlite"

// buildDSN returns a read-only file URI for the database.
func buildDSN(cfg *Config) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeoutMS))
	return "file:" + cfg.Path + "?" + q.Encode()
}

// QueryExecutor provides SQLite query execution.
type QueryExecutor struct {
	db      *sql.DB
	source  string
	ownedDB bool
}

// NewQueryExecutor opens the database file through the connection manager.
// The file must exist; SQLite would otherwise create an empty one.
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, source string) (*QueryExecutor, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("sqlite database %s: %w", cfg.Path, err)
	}
	dsn := buildDSN(cfg)

	if connMgr == nil {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		return &QueryExecutor{db: db, source: source, ownedDB: true}, nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, source, dsn, datasource.SQLPoolOpener(driverName, "sqlite"))
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}
	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{db: db, source: source}, nil
}

// Query renders q with backtick identifiers and ? placeholders.
func (e *QueryExecutor) Query(ctx context.Context, q *sqlb.Query) (*models.Table, error) {
	text, args, err := q.Render(sqlb.DialectSQLite)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows, nil)
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
