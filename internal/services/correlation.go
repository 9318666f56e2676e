package services

import "context"

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID attaches the request's correlation id to ctx so
// components below the handler can stamp their audit events with it.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation id attached to ctx, or ""
// when the call did not originate from an inbound request.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
