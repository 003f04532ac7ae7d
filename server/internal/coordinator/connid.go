package coordinator

import "context"

type connIDKey struct{}

// WithConnID attaches a connection id to ctx for log correlation.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnID returns the connection id stored by WithConnID.
func ConnID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connIDKey{}).(string)
	return id, ok
}
