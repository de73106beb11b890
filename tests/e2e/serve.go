package e2e

import (
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stretchr/testify/require"

	"github.com/bookverse/identity/internal/handlers"
	"github.com/bookverse/identity/internal/handlers/middleware"
	"github.com/bookverse/identity/internal/repository"
	"github.com/bookverse/identity/internal/repository/postgres"
	"github.com/bookverse/identity/internal/service/auth"
	"github.com/bookverse/identity/internal/service/auth/tokenmanager"
	"github.com/bookverse/identity/internal/service/user"
	"github.com/bookverse/identity/internal/testutil"
)

type Services struct {
	AuthService *auth.AuthService
	UserService *user.UserService
	Storage     repository.Storage
}

// Create db transaction and run server in with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.WithTx with it
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		// Initialize repositories
		storage := postgres.NewStorage(tx)

		// Initialize services
		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Refresh())
		require.NoError(t, err, "token manager should be created without errors")

		as, err := auth.NewService(auth.Config{}, tokenManager, storage)
		require.NoError(t, err, "auth service starting error", err)

		us := user.NewService(storage.User())

		// Complete all together as router
		router := handlers.NewRouter(
			handlers.NewAuth(as),
			us,
			middleware.NewAuth(as),
			middleware.NewAdmin(us),
		)

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{
			AuthService: as,
			UserService: us,
			Storage:     storage,
		})
	})
}
