package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
)

func serveMCP(t *testing.T, reqBody, respBody string, m metrics.Backend) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respBody))
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	MCPRequestLogger(zap.New(core), m)(handler).ServeHTTP(httptest.NewRecorder(), req)
	return logs
}

const analyzeCall = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"analyze_column","arguments":{"column":"Weight"}}}`

func TestMCPRequestLogger_SuccessfulToolCall(t *testing.T) {
	m := newCountingMetrics()
	logs := serveMCP(t, analyzeCall, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`, m)

	require.Equal(t, 2, logs.Len())
	req := logs.All()[0]
	assert.Equal(t, "MCP request", req.Message)
	assert.Equal(t, "tools/call", req.ContextMap()["method"])
	assert.Equal(t, "analyze_column", req.ContextMap()["tool"])
	assert.Equal(t, "MCP tool call complete", logs.All()[1].Message)

	assert.Equal(t, float64(1), m.counters[metrics.Key(metrics.MCPToolCallsTotal, metrics.Labels{"tool": "analyze_column", "outcome": "ok"})])
}

func TestMCPRequestLogger_RPCError(t *testing.T) {
	m := newCountingMetrics()
	logs := serveMCP(t, analyzeCall, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"missing column"}}`, m)

	entry := logs.All()[1]
	assert.Equal(t, "MCP tool call failed", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, int64(-32602), entry.ContextMap()["error_code"])
	assert.Equal(t, float64(1), m.counters[metrics.Key(metrics.MCPToolCallsTotal, metrics.Labels{"tool": "analyze_column", "outcome": "rpc_error"})])
}

func TestMCPRequestLogger_ToolErrorInStream(t *testing.T) {
	m := newCountingMetrics()
	stream := "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"isError\":true,\"content\":[]}}\n\n"
	logs := serveMCP(t, analyzeCall, stream, m)

	assert.Equal(t, "MCP tool returned an error", logs.All()[1].Message)
	assert.Equal(t, float64(1), m.counters[metrics.Key(metrics.MCPToolCallsTotal, metrics.Labels{"tool": "analyze_column", "outcome": "tool_error"})])
}

func TestMCPRequestLogger_NonToolMethodsAreNotCounted(t *testing.T) {
	m := newCountingMetrics()
	logs := serveMCP(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, `{"jsonrpc":"2.0","id":1,"result":{}}`, m)

	assert.Equal(t, 1, logs.Len())
	assert.Empty(t, m.counters)
}

func TestMCPRequestLogger_PreservesRequestBody(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		seen = buf.String()
	})
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(analyzeCall))
	MCPRequestLogger(zap.New(core), nil)(handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, analyzeCall, seen)
}

func TestSanitizeArguments(t *testing.T) {
	long := strings.Repeat("x", 250)
	got := sanitizeArguments(map[string]any{
		"password_ref": "line_a",
		"api_key":      "secret",
		"filters":      []any{"Status = OK"},
		"column":       long,
	})

	assert.Equal(t, "[REDACTED]", got["password_ref"])
	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, []any{"Status = OK"}, got["filters"])
	assert.Len(t, got["column"], maxLoggedArgument+3)
	assert.Nil(t, sanitizeArguments(nil))
}
