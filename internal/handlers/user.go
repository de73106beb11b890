package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bookverse/identity/internal/handlers/render"
	"github.com/bookverse/identity/internal/handlers/userctx"
	"github.com/bookverse/identity/internal/models"
)

type UserService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// handleUserMe returns the profile of the authenticated user
func handleUserMe(users UserService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authUser, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := users.GetUser(r.Context(), authUser.ID)
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}
