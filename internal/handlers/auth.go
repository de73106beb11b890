package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bookverse/identity/internal/apperrors"
	"github.com/bookverse/identity/internal/handlers/render"
	"github.com/bookverse/identity/internal/models"
)

// Auth service as the handlers see it
type AuthService interface {
	// Register user; has to return apperrors.ErrUserAlreadyExists on duplicate email
	Register(ctx context.Context, email string, name string, password string) (models.TokenPair, error)

	// Login user; apperrors.ErrInvalidCredentials on bad credentials,
	// apperrors.LoginLockedError while the account is locked
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Rotate refresh token
	// Expired: apperrors.ErrRefreshTokenExpired
	// Unknown: apperrors.ErrRefreshTokenNotFound
	// Rotated already: apperrors.ErrRefreshTokenReused
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke one refresh token, idempotent
	Logout(ctx context.Context, refresh string) error

	// Password reset flow
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, newPassword string) error

	// Session credentials on the wire
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
	GetRefreshString(r *http.Request) (string, error)
	ClearRefreshCookie(w http.ResponseWriter)
}

type AuthHandler struct {
	authService AuthService
}

func NewAuth(auth AuthService) *AuthHandler {
	return &AuthHandler{authService: auth}
}

func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("POST /password/forgot", h.forgotPassword)
	mux.HandleFunc("POST /password/reset", h.resetPassword)

	return mux
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Name     string `json:"name" validate:"required,min=1,max=100"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type RegisterSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Register(r.Context(), data.Email, data.Name, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPairToResponse(w, pair)
	render.JSON(w, RegisterSuccessResponse{Message: "User registered successfully"})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	type LoginSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	pair, err := h.authService.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		var locked apperrors.LoginLockedError
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
		case errors.As(err, &locked):
			retryAfter := max(int(time.Until(locked.Until).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			render.ServiceError(w, "Too many failed logins, try again later", http.StatusTooManyRequests)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPairToResponse(w, pair)
	render.JSON(w, LoginSuccessResponse{Message: "User logged in successfully"})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshSuccessResponse struct {
		Message string `json:"message"`
	}

	refresh, err := h.authService.GetRefreshString(r)
	if err != nil {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	pair, err := h.authService.RefreshPair(r.Context(), refresh)
	if err != nil {
		// Whatever went wrong, the presented cookie value is dead:
		// clear it so the client does not replay it
		h.authService.ClearRefreshCookie(w)

		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenReused):
			render.ServiceError(w, "Refresh token reuse detected", http.StatusForbidden)
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusForbidden)
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			render.ServiceError(w, "Invalid refresh token", http.StatusForbidden)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPairToResponse(w, pair)
	render.JSON(w, RefreshSuccessResponse{Message: "Tokens refreshed successfully"})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	// Logout is idempotent: no cookie, unknown token, it all ends the same
	refresh, err := h.authService.GetRefreshString(r)
	if err == nil {
		if err := h.authService.Logout(r.Context(), refresh); err != nil {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	h.authService.ClearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	type ForgotRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
	type ForgotSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[ForgotRequest](w, r)
	if err != nil {
		return
	}

	err = h.authService.RequestPasswordReset(r.Context(), data.Email)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, ForgotSuccessResponse{Message: "Password reset email sent"})
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	type ResetRequest struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type ResetSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[ResetRequest](w, r)
	if err != nil {
		return
	}

	err = h.authService.ResetPassword(r.Context(), data.Token, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrResetTokenInvalid):
			render.ServiceError(w, "Invalid or expired token", http.StatusBadRequest)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, ResetSuccessResponse{Message: "Password has been reset"})
}
