package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware attaches the bearer token's user to the request context.
// Requests without a token pass through anonymously; Identity rejects them
// where a user is required. WebSocket clients may send access_token as a
// query parameter instead of a header.
func Middleware(v *Verifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := v.Verify(raw)
			if err != nil {
				log.Debug("rejected token", zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"your session has expired, please sign in again"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("access_token")
}
