// Package metrics is the small instrumentation surface the services depend on.
// Backends (Datadog, no-op) live behind Backend so the fetch and combine code
// never imports a vendor SDK.
package metrics

import "sort"

// Labels are metric dimensions. Backends turn them into tags.
type Labels map[string]string

// Backend receives counters and histogram samples.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

// Metric names emitted by lineqa.
const (
	SourceFetchTotal    = "lineqa.source.fetch.total"
	SourceFetchDuration = "lineqa.source.fetch.duration_seconds"
	SourceFetchRows     = "lineqa.source.fetch.rows"
	CombineRowsTotal    = "lineqa.combine.rows.total"
	CombineRunsTotal    = "lineqa.combine.runs.total"
	AnalyzeRunsTotal    = "lineqa.analyze.runs.total"
	HTTPRequestsTotal   = "lineqa.http.requests.total"
	MCPToolCallsTotal   = "lineqa.mcp.tool_calls.total"
	MCPToolDuration     = "lineqa.mcp.tool_calls.duration_seconds"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}

// Key is a stable identity for a metric name and label set.
func Key(name string, labels Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := name
	for _, k := range keys {
		out += "\x00" + k + "=" + labels[k]
	}
	return out
}

// Tags renders labels as sorted "k:v" strings.
func (l Labels) Tags() []string {
	out := make([]string, 0, len(l))
	for k, v := range l {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
