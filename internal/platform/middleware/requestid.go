package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"lumenpay/pkg/requestcontext"
)

// RequestID stamps every request with an ID for log and audit correlation.
// An inbound X-Request-ID is trusted as-is so IDs survive proxy hops.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
