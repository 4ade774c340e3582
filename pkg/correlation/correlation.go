// Package correlation threads a per-request correlation ID through contexts
// and log records so a request or job can be reconstructed across components.
package correlation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type contextKey struct{}

// NewContext returns a context carrying the correlation ID.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the correlation ID, or "" when absent.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

var seq atomic.Uint64

// Generate produces a correlation ID in the form
// YYYYMMDD_<unix-seconds>_<4-digit-seq>. The sequence wraps at 10000;
// combined with the timestamp this is unique enough for log correlation.
func Generate() string {
	now := time.Now().UTC()
	n := seq.Add(1) % 10000
	return fmt.Sprintf("%s_%d_%04d", now.Format("20060102"), now.Unix(), n)
}
