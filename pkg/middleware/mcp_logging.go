package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
)

const maxLoggedArgument = 200

// MCPRequestLogger logs MCP JSON-RPC traffic and counts tools/call requests
// by tool and outcome. A tool that reports isError counts as "tool_error".
// A nil logger disables the middleware.
func MCPRequestLogger(logger *zap.Logger, m metrics.Backend) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var req rpcRequest
			if err := json.Unmarshal(body, &req); err != nil {
				// GET streams and batch requests are not single JSON objects.
				logger.Debug("MCP request is not a single JSON-RPC call", zap.Error(err))
			}
			tool := req.Params.Name

			logger.Debug("MCP request",
				zap.String("method", req.Method),
				zap.String("tool", tool),
				zap.Any("arguments", sanitizeArguments(req.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			if req.Method != "tools/call" {
				return
			}

			outcome := "ok"
			var resp rpcResponse
			if err := json.Unmarshal(lastJSONPayload(recorder.body.Bytes()), &resp); err != nil {
				logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
				outcome = "unparsed"
			}
			switch {
			case resp.Error != nil:
				outcome = "rpc_error"
				logger.Warn("MCP tool call failed",
					zap.String("tool", tool),
					zap.Int("error_code", resp.Error.Code),
					zap.String("error_message", resp.Error.Message),
					zap.Duration("duration", elapsed),
				)
			case resp.Result.IsError:
				outcome = "tool_error"
				logger.Info("MCP tool returned an error",
					zap.String("tool", tool),
					zap.Duration("duration", elapsed),
				)
			default:
				logger.Debug("MCP tool call complete",
					zap.String("tool", tool),
					zap.Duration("duration", elapsed),
				)
			}

			labels := metrics.Labels{"tool": tool, "outcome": outcome}
			m.IncCounter(metrics.MCPToolCallsTotal, 1, labels)
			m.ObserveHistogram(metrics.MCPToolDuration, elapsed.Seconds(), metrics.Labels{"tool": tool})
		})
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// lastJSONPayload returns the body, or for an SSE stream the last "data:" line.
func lastJSONPayload(b []byte) []byte {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] == '{' {
		return trimmed
	}
	var last []byte
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		if data, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("data:")); ok {
			last = bytes.TrimSpace(data)
		}
	}
	return last
}

var sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

// sanitizeArguments redacts secret-looking fields and truncates long strings.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		redact := false
		for _, kw := range sensitiveKeywords {
			if strings.Contains(lower, kw) {
				redact = true
				break
			}
		}
		if redact {
			out[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxLoggedArgument {
			out[k] = s[:maxLoggedArgument] + "..."
			continue
		}
		out[k] = v
	}
	return out
}
