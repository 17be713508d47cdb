package datasource

import (
	"context"
	"fmt"
)

// ExecutorFactory creates executors from the registry.
type ExecutorFactory interface {
	// NewQueryExecutor creates a query executor for the given type. source
	// keys the pooled connection.
	NewQueryExecutor(ctx context.Context, dsType string, config map[string]any, source string) (QueryExecutor, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
}

// NewExecutorFactory returns a factory that uses the global registry.
func NewExecutorFactory(connMgr *ConnectionManager) ExecutorFactory {
	return &registryFactory{
		connMgr: connMgr,
	}
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, dsType string, config map[string]any, source string) (QueryExecutor, error) {
	factory := GetQueryExecutorFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s", dsType)
	}
	return factory(ctx, config, f.connMgr, source)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements ExecutorFactory at compile time.
var _ ExecutorFactory = (*registryFactory)(nil)
