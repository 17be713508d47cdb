package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/config"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
)

const driverName = "mysql"

// buildDSN formats a go-sql-driver DSN. Timestamps are parsed into
// time.Time in UTC.
func buildDSN(cfg *Config) string {
	dc := mysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(cfg.Port))
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.TLSConfig = tlsModes[cfg.SSLMode]
	if len(cfg.Params) > 0 {
		dc.Params = make(map[string]string, len(cfg.Params))
		for k, v := range cfg.Params {
			dc.Params[k] = v
		}
	}
	return dc.FormatDSN()
}

// QueryExecutor provides MySQL query execution.
type QueryExecutor struct {
	db      *sql.DB
	source  string
	ownedDB bool
}

// NewQueryExecutor creates a MySQL query executor using the connection manager.
// If connMgr is nil, the executor opens and owns its own pool.
func NewQueryExecutor(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, source string) (*QueryExecutor, error) {
	dsn := buildDSN(cfg)

	if connMgr == nil {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql connection: %w", err)
		}
		return newQueryExecutor(db, source, true), nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, source, dsn, datasource.SQLPoolOpener(driverName, "mysql"))
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

// Query renders q with backtick identifiers and ? placeholders.
func (e *QueryExecutor) Query(ctx context.Context, q *sqlb.Query) (*models.Table, error) {
	text, args, err := q.Render(sqlb.DialectMySQL)
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
