package logging

import "context"

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	requestIDKey contextKey = "request_id"
)

// TraceIDKey returns the context key under which a trace ID is stored:
//
//	ctx := context.WithValue(ctx, logging.TraceIDKey(), "trace-123")
func TraceIDKey() interface{} {
	return traceIDKey
}

// RequestIDKey returns the context key under which a request ID is stored.
// The API server middleware sets it for every inbound request.
func RequestIDKey() interface{} {
	return requestIDKey
}

// extractContextFields pulls trace_id and request_id out of ctx.
// Returns nil when ctx is nil or carries neither.
func extractContextFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	fields := make(map[string]interface{})

	if traceID := ctx.Value(traceIDKey); traceID != nil {
		fields["trace_id"] = traceID
	}

	if requestID := ctx.Value(requestIDKey); requestID != nil {
		fields["request_id"] = requestID
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}
