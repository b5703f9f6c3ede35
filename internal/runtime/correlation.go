package runtime

import "context"

type correlationKey struct{}

// WithCorrelation returns a context carrying the correlation ID of the
// request that triggered the current dispatch. The runtime attaches it
// before invoking a service method so the method can answer a Request
// bridge via ResolveRequest.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationFromContext returns the correlation ID attached to ctx, if
// the current call was dispatched with one.
func CorrelationFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}
