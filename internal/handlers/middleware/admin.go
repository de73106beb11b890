package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookverse/identity/internal/handlers/render"
	"github.com/bookverse/identity/internal/handlers/userctx"
	"github.com/bookverse/identity/internal/models"
)

type userService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type AdminMiddleware struct {
	users userService
}

func NewAdmin(us userService) *AdminMiddleware {
	return &AdminMiddleware{users: us}
}

// Admin restricts the route to administrators. It must run after
// AuthMiddleware: the identity is read from the context, then the full
// credential record is loaded to check the current role
func (m *AdminMiddleware) Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authUser, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := m.users.GetUser(r.Context(), authUser.ID)
		if err != nil || !user.IsAdmin() {
			render.ServiceError(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
