// Package httpmiddleware provides the HTTP middleware chain shared by
// internal/pixelingress and internal/adminapi: correlation ids, structured
// request logging, panic recovery, and rate limiting.
package httpmiddleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const correlationIDBytes = 8

type correlationIDKey struct{}

// CorrelationID adds an X-Correlation-ID to the request context and
// response headers, reusing the caller-supplied header value if present.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Correlation-ID")
			if id == "" {
				id = generateCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", id)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation id set by CorrelationID, or
// "unknown" if none is present (e.g. a handler invoked outside the chain,
// as in a unit test).
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return "unknown"
}

func generateCorrelationID() string {
	buf := make([]byte, correlationIDBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand is unavailable; a fixed placeholder id still beats
		// failing the request over a diagnostics header.
		return "unavailable"
	}

	return hex.EncodeToString(buf)
}
