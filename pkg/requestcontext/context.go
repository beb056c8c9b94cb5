// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them without importing net/http.
//
// Usage in services:
//
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in middleware:
//
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import (
	"context"
	"time"

	"bloodtrace/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	identityKey    struct{}
)

// RequestID retrieves the correlation ID set by the request-ID middleware.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestTime retrieves the request arrival time, falling back to the wall
// clock when no middleware set it. Tests inject a fixed time for determinism.
func RequestTime(ctx context.Context) time.Time {
	if ts, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return ts
	}
	return time.Now()
}

// WithRequestTime injects a request arrival time into the context.
func WithRequestTime(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, ts)
}

// Identity retrieves the acting ledger address for this request, when one
// was established. Returns the empty address if not set.
func Identity(ctx context.Context) domain.Address {
	if addr, ok := ctx.Value(identityKey{}).(domain.Address); ok {
		return addr
	}
	return ""
}

// WithIdentity injects the acting ledger address into the context.
func WithIdentity(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, identityKey{}, addr)
}
