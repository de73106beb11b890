package auth

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/bookverse/identity/internal/testutil"
	"github.com/bookverse/identity/tests/e2e"
)

const (
	LoginURL = "/api/auth/login"
)

func Test_AuthLogin(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e2e.ServeWithTx(pg.Pool, t, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		t.Run("login ok", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				_, err := s.AuthService.Register(t.Context(), "nk@example.com", "NK", "StrongEnoughPassword")
				require.NoError(t, err)

				data := `{"email": "nk@example.com", "password": "StrongEnoughPassword"}`
				resp, err := http.Post(srvURL+LoginURL, "application/json", strings.NewReader(data))
				require.NoError(t, err)
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				defer func() { _ = resp.Body.Close() }()

				require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
				require.JSONEq(t, `
					{
						"message": "User logged in successfully"
					}`, string(body))

				require.Equal(t, 1, len(resp.Cookies()))
				cookie := resp.Cookies()[0]
				require.Equal(t, "refreshtoken", cookie.Name)
				require.Equal(t, cookie.HttpOnly, true, "refresh cookie should be HttpOnly")
				require.Equal(t, "/", cookie.Path, "refresh cookie should be available on / path")
				require.Equal(t, http.SameSiteStrictMode, cookie.SameSite, "refresh cookie should be SameSite Strict")
				require.InDelta(t, (7 * 24 * time.Hour).Seconds(), cookie.MaxAge, 1, "max age should be refresh TTL with 1 second delta")
				require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")

				require.Contains(t, resp.Header, "Authorization")
				header := resp.Header.Get("Authorization")
				require.Contains(t, header, "Bearer")
			})
		})

		t.Run("login failed", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				data := `{"email": "nk@example.com", "password": "WrongPassword"}`

				resp, err := http.Post(srvURL+LoginURL, "application/json", strings.NewReader(data))
				require.NoError(t, err)
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				defer func() { _ = resp.Body.Close() }()

				require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", string(body))
				require.JSONEq(t, `
					{
						"error": "service_error",
						"message": "Invalid email or password"
					}`, string(body))

				require.Equal(t, 0, len(resp.Cookies()), "no cookies should be set on login error")
				require.NotContains(t, resp.Header, "Authorization", "Authorization header should not be set")
			})
		})

		t.Run("lockout engages and carries retry after", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				_, err := s.AuthService.Register(t.Context(), "nk@example.com", "NK", "StrongEnoughPassword")
				require.NoError(t, err)

				data := `{"email": "nk@example.com", "password": "WrongPassword"}`
				var resp *http.Response
				for range 5 {
					resp, err = http.Post(srvURL+LoginURL, "application/json", strings.NewReader(data))
					require.NoError(t, err)
					_ = resp.Body.Close()
				}

				require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "fifth failure should lock the account")
				require.NotEmpty(t, resp.Header.Get("Retry-After"), "locked response should carry Retry-After header")
			})
		})
	})
}
