package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// maxParamSize bounds string parameters in audit logs.
const maxParamSize = 1024

// sensitiveParamKeys are hashed instead of logged.
var sensitiveParamKeys = []string{"password", "secret", "token", "key", "credential"}

// AuditLogger logs every tool call with its duration and outcome. It works
// for every transport, including stdio where no HTTP middleware runs.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("mcp-audit")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := a.elapsed(id)
	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", elapsed),
		zap.Any("params", sanitizeParams(req.Params.Arguments)),
	}
	if result != nil && result.IsError {
		summary := summarizeResult(result)
		fields = append(fields, zap.String("error_summary", summary))
		if flag := securityFlag(summary); flag != "" {
			a.logger.Warn("Tool call rejected", append(fields, zap.String("security_flag", flag))...)
			return
		}
		a.logger.Info("Tool call returned error result", fields...)
		return
	}
	a.logger.Info("Tool call completed", fields...)
}

func (a *AuditLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	a.logger.Error("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", a.elapsed(id)),
		zap.Any("params", sanitizeParams(req.Params.Arguments)),
		zap.Error(err))
}

func (a *AuditLogger) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

// sanitizeParams prepares request parameters for logging: sensitive keys
// are hashed and long strings are truncated.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}
	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return hashSensitiveValue(value)
	}
	switch val := value.(type) {
	case string:
		if len(val) > maxParamSize {
			return val[:maxParamSize] + "...[truncated]"
		}
		return val
	case map[string]any:
		return sanitizeParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(key, item)
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveParamKeys {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hashSensitiveValue returns a SHA-256 prefix so entries can be correlated
// without logging the value.
func hashSensitiveValue(value any) string {
	str, ok := value.(string)
	if !ok {
		str = fmt.Sprintf("%v", value)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// summarizeResult returns a truncated preview of the first text content.
func summarizeResult(result *mcplib.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			if len(tc.Text) > 200 {
				return tc.Text[:200] + "...[truncated]"
			}
			return tc.Text
		}
	}
	return ""
}

// securityFlag classifies error results produced by filter screening.
func securityFlag(summary string) string {
	lower := strings.ToLower(summary)
	if strings.Contains(lower, "injection") {
		return "sql_injection_attempt"
	}
	return ""
}
