package handlers

import (
	"net/http"

	"github.com/bookverse/identity/internal/handlers/middleware"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	userService UserService,
	authMiddleware *middleware.AuthMiddleware,
	adminMiddleware *middleware.AdminMiddleware,
	mds ...func(next http.Handler) http.Handler,
) http.Handler {
	withAuth := authMiddleware.Auth
	withAdmin := func(h http.Handler) http.Handler {
		return withAuth(adminMiddleware.Admin(h))
	}

	root := http.NewServeMux()

	root.Handle("/api/auth/", http.StripPrefix("/api/auth", authHandler.Handler()))

	root.Handle("GET /api/user/me", withAuth(handleUserMe(userService)))

	root.Handle("GET /api/admin/users", withAdmin(handleAdminListUsers(userService)))
	root.Handle("DELETE /api/admin/users/{id}", withAdmin(handleAdminDeleteUser(userService)))

	return chain(root, mds...)
}
