// Package audit writes security events about rejected source queries in a
// structured form for SIEM consumption.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventFilterRejected is logged when a filter fails validation for any other reason.
	EventFilterRejected SecurityEventType = "filter_rejected"
)

// maxLoggedValue bounds the attacker-controlled text copied into an event.
const maxLoggedValue = 256

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	Sources   []string          `json:"sources,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails describes a flagged filter value.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"`
}

type requestIDKey struct{}

// WithRequestID attaches the caller's request id so events can be correlated
// with the HTTP request log.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// SecurityAuditor logs security events under the "security_audit" logger.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogInjectionAttempt records a filter value rejected as SQL injection.
// It logs at ERROR with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, sources []string, details SQLInjectionDetails) {
	details.ParamValue = truncate(details.ParamValue)
	event := a.event(ctx, EventSQLInjectionAttempt, sources, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshal(event)),
		zap.String("request_id", event.RequestID),
		zap.Strings("sources", sources),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", event.Severity),
	)
}

// LogFilterRejected records any other invalid filter. These are usually
// operator mistakes, so they log at WARN.
func (a *SecurityAuditor) LogFilterRejected(ctx context.Context, sources []string, message string) {
	message = truncate(message)
	event := a.event(ctx, EventFilterRejected, sources, map[string]string{"error": message}, "warning")

	a.logger.Warn("Filter rejected",
		zap.String("event_json", marshal(event)),
		zap.String("request_id", event.RequestID),
		zap.Strings("sources", sources),
		zap.String("error", message),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) event(ctx context.Context, t SecurityEventType, sources []string, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: t,
		RequestID: RequestIDFromContext(ctx),
		Sources:   sources,
		Details:   details,
		Severity:  severity,
	}
}

func marshal(e SecurityEvent) string {
	// Only strings, slices and maps of strings reach here.
	b, _ := json.Marshal(e)
	return string(b)
}

func truncate(s string) string {
	if len(s) <= maxLoggedValue {
		return s
	}
	return s[:maxLoggedValue] + "...(truncated)"
}
