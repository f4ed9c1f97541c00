package oautherr

import (
	"log/slog"
	"strings"
)

// Redacted replaces sensitive values in logging context
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"client_secret":      {},
	"access_token":       {},
	"refresh_token":      {},
	"authorization_code": {},
	"password":           {},
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// Redact returns a copy of m with sensitive keys masked, recursing into
// nested maps and slices. The input is never modified.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSensitive(k) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return Redact(vv)
	case map[string]string:
		out := make(map[string]string, len(vv))
		for k, s := range vv {
			if isSensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}

// LogContext returns structured diagnostics for logs. Raw provider
// descriptions appear only here.
func (e *Error) LogContext() map[string]any {
	ctx := map[string]any{
		"error_code":  e.Code,
		"category":    string(e.Category),
		"http_status": e.HTTPStatus,
		"retryable":   e.Retryable,
	}
	if e.RetryAfter != nil {
		ctx["retry_after"] = *e.RetryAfter
	}
	if e.MaxRetries != nil {
		ctx["max_retries"] = *e.MaxRetries
	}
	if e.Description != "" {
		ctx["description"] = e.Description
	}
	if e.Reason != "" {
		ctx["reason"] = e.Reason
	}
	if len(e.Context) > 0 {
		ctx["context"] = e.Context
	}
	if e.cause != nil {
		ctx["cause"] = e.cause.Error()
	}
	return Redact(ctx)
}

// LogValue implements slog.LogValuer
func (e *Error) LogValue() slog.Value {
	ctx := e.LogContext()
	attrs := make([]slog.Attr, 0, len(ctx))
	for k, v := range ctx {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}
