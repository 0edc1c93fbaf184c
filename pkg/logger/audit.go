package logger

import (
	"context"
	"log/slog"
	"sort"
)

// AuditLogger writes the operator trail: logins, unblocks, key issuance.
// Registration attempts are audited separately in the attempt store.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new AuditLogger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger.With(slog.String("log_type", "operator_audit"))}
}

// Login records an operator login. Failures log at warn with the reason.
func (al *AuditLogger) Login(ctx context.Context, actor, clientIP string, ok bool, reason string) {
	attrs := []slog.Attr{
		slog.String("action", "admin_login"),
		slog.Bool("success", ok),
		slog.String("actor", MaskEmail(actor)),
	}
	if clientIP != "" {
		attrs = append(attrs, slog.String("client_ip", clientIP))
	}

	level := slog.LevelInfo
	if !ok {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("failure_reason", reason))
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// Action records an operator change. Fields are logged in key order.
func (al *AuditLogger) Action(ctx context.Context, action, actor, clientIP string, fields map[string]string) {
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.String("actor", MaskEmail(actor)),
	}
	if clientIP != "" {
		attrs = append(attrs, slog.String("client_ip", clientIP))
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs = append(attrs, slog.String(name, fields[name]))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
