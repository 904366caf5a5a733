package client

import (
	"context"
	"net/http"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestIDHeader carries the correlation id of a signing operation on every outbound call.
const RequestIDHeader = "X-Request-ID"

// WithRequestID stores a correlation id in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext extracts the correlation id from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

type requestIDTransport struct {
	next http.RoundTripper
}

// NewRequestIDTransport sets RequestIDHeader from the request context.
func NewRequestIDTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &requestIDTransport{next: next}
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := RequestIDFromContext(req.Context())
	if id == "" || req.Header.Get(RequestIDHeader) != "" {
		return t.next.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set(RequestIDHeader, id)
	return t.next.RoundTrip(clone)
}
