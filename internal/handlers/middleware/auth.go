package middleware

import (
	"context"
	"net/http"

	"github.com/bookverse/identity/internal/handlers/render"
	"github.com/bookverse/identity/internal/handlers/userctx"
	"github.com/bookverse/identity/internal/models"
)

type authService interface {
	// Get request and return the verified identity or an error
	Auth(ctx context.Context, r *http.Request) (models.AuthUser, error)
}

type AuthMiddleware struct {
	auth authService
}

func NewAuth(as authService) *AuthMiddleware {
	return &AuthMiddleware{auth: as}
}

// Auth verifies the bearer access token and attaches the identity to
// the request context. Any failure halts the pipeline with 401, the
// request is never passed on as anonymous
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.auth.Auth(r.Context(), r)
		if err != nil {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := userctx.New(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
