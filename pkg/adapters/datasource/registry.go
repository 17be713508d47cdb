package datasource

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// AdapterInfo describes a registered adapter for listing.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver", "mysql", "sqlite"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// QueryExecutorFactory creates an executor for one source. source names the
// pool slot in connMgr; connMgr may be nil, in which case the executor owns
// its own pool.
type QueryExecutorFactory func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, source string) (QueryExecutor, error)

// AdapterRegistration contains info and the executor factory for an adapter.
// Aliases are alternative type names accepted in source configuration.
type AdapterRegistration struct {
	Info                 AdapterInfo
	Aliases              []string
	QueryExecutorFactory QueryExecutorFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
	aliases    = make(map[string]string)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
	for _, a := range reg.Aliases {
		aliases[strings.ToLower(a)] = reg.Info.Type
	}
}

// resolveType maps a configured type or alias to the registered type.
// Caller holds registryMu.
func resolveType(dsType string) string {
	t := strings.ToLower(strings.TrimSpace(dsType))
	if canonical, ok := aliases[t]; ok {
		return canonical
	}
	return t
}

// CanonicalType returns the registered type name for dsType, or "" when
// nothing is registered under that name or alias.
func CanonicalType(dsType string) string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t := resolveType(dsType)
	if _, ok := registry[t]; !ok {
		return ""
	}
	return t
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetQueryExecutorFactory returns the query executor factory for a type or alias.
// Returns nil if type is not registered.
func GetQueryExecutorFactory(dsType string) QueryExecutorFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[resolveType(dsType)]; ok {
		return reg.QueryExecutorFactory
	}
	return nil
}

// IsRegistered checks if an adapter type or alias is available.
func IsRegistered(dsType string) bool {
	return CanonicalType(dsType) != ""
}
