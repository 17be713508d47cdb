package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
)

// mockQueryExecutor for testing factory
type mockQueryExecutor struct {
	source  string
	config  map[string]any
	connMgr *ConnectionManager
}

func (m *mockQueryExecutor) Query(ctx context.Context, q *sqlb.Query) (*models.Table, error) {
	return models.NewTable(nil), nil
}

func (m *mockQueryExecutor) Ping(ctx context.Context) error { return nil }

func (m *mockQueryExecutor) Close() error { return nil }

func registerMock(t *testing.T, dsType string, alts ...string) {
	t.Helper()
	Register(AdapterRegistration{
		Info:    AdapterInfo{Type: dsType, DisplayName: "Mock " + dsType},
		Aliases: alts,
		QueryExecutorFactory: func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, source string) (QueryExecutor, error) {
			return &mockQueryExecutor{source: source, config: config, connMgr: connMgr}, nil
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		defer registryMu.Unlock()
		delete(registry, dsType)
		for _, a := range alts {
			delete(aliases, a)
		}
	})
}

func TestFactory_NewQueryExecutor_PassesSourceAndManager(t *testing.T) {
	registerMock(t, "mock_factory")

	connMgr := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer connMgr.Close()

	factory := NewExecutorFactory(connMgr)
	cfg := map[string]any{"host": "db.local"}

	exec, err := factory.NewQueryExecutor(context.Background(), "mock_factory", cfg, "line_a")
	require.NoError(t, err)

	mock, ok := exec.(*mockQueryExecutor)
	require.True(t, ok)
	assert.Equal(t, "line_a", mock.source)
	assert.Equal(t, connMgr, mock.connMgr)
	assert.Equal(t, "db.local", mock.config["host"])
}

func TestFactory_UnsupportedType(t *testing.T) {
	factory := NewExecutorFactory(nil)

	_, err := factory.NewQueryExecutor(context.Background(), "oracle_not_here", nil, "line_a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported datasource type")
}

func TestRegistry_AliasesResolveCaseInsensitively(t *testing.T) {
	registerMock(t, "mock_alias", "mock_alt")

	assert.True(t, IsRegistered("mock_alias"))
	assert.True(t, IsRegistered("MOCK_ALT"))
	assert.Equal(t, "mock_alias", CanonicalType(" Mock_Alt "))
	assert.NotNil(t, GetQueryExecutorFactory("mock_alt"))

	assert.False(t, IsRegistered("nope"))
	assert.Equal(t, "", CanonicalType("nope"))
	assert.Nil(t, GetQueryExecutorFactory("nope"))
}

func TestRegistry_ListIsSorted(t *testing.T) {
	registerMock(t, "mock_zz")
	registerMock(t, "mock_aa")

	types := NewExecutorFactory(nil).ListTypes()
	for i := 1; i < len(types); i++ {
		assert.LessOrEqual(t, types[i-1].Type, types[i].Type)
	}
}
