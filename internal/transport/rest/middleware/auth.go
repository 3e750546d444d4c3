package middleware

import (
	"context"
	"net/http"
	"strings"

	"heartstage/internal/service"
)

type contextKey string

const DirectorIDKey contextKey = "directorId"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireDirector validates the director JWT from the Authorization
// header, falling back to a token query param for EventSource clients
// that cannot set headers.
func (m *AuthMiddleware) RequireDirector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), DirectorIDKey, claims.DirectorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDirectorID extracts the director ID from the request context
func GetDirectorID(ctx context.Context) string {
	if v := ctx.Value(DirectorIDKey); v != nil {
		return v.(string)
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
