package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
)

// QueryExecutor runs built queries against one source database.
// Each executor renders the query in its own dialect. Executors obtained
// through a ConnectionManager share the manager's pool; Close releases only
// what the executor owns.
type QueryExecutor interface {
	// Query executes q and returns every row as a table.
	Query(ctx context.Context, q *sqlb.Query) (*models.Table, error)

	// Ping verifies the source is reachable.
	Ping(ctx context.Context) error

	Close() error
}
