package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

var ownerKey contextKey

// OwnerID returns the authenticated owner id from a request context,
// or "" when the request was not authenticated.
func OwnerID(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// WithOwner returns a context carrying an owner id. Exported for tests
// and for handlers invoked outside the middleware.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// Middleware resolves the Authorization bearer token to an owner id
// and stores it in the request context. Requests without a valid token
// get 401 and never reach the handler.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		ownerID, err := s.VerifyToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskpilot"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
