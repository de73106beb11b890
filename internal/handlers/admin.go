package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookverse/identity/internal/apperrors"
	"github.com/bookverse/identity/internal/handlers/render"
)

// handleAdminListUsers returns every credential record
func handleAdminListUsers(users UserService) http.Handler {
	type response struct {
		Users []userResponse `json:"users"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := users.ListUsers(r.Context())
		if err != nil {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		resp := response{Users: make([]userResponse, 0, len(list))}
		for _, u := range list {
			resp.Users = append(resp.Users, toUserResponse(u))
		}

		render.JSON(w, resp)
	})
}

// handleAdminDeleteUser removes a credential record. The only way a
// user record ever disappears
func handleAdminDeleteUser(users UserService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		err = users.DeleteUser(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusNotFound)
			default:
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
