package auth

import (
	"io"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookverse/identity/internal/models"
	"github.com/bookverse/identity/internal/testutil"
	"github.com/bookverse/identity/tests/e2e"
)

const (
	RefreshURL = "/api/auth/refresh"
	LogoutURL  = "/api/auth/logout"
)

func Test_AuthRefresh(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e2e.ServeWithTx(pg.Pool, t, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		// Create request and set auth credentials on it
		createRequest := func(t *testing.T, url string, pair models.TokenPair) *http.Request {
			req, err := http.NewRequest(http.MethodPost, url, nil)
			require.NoError(t, err)
			s.AuthService.SetTokenPairToRequest(req, pair)
			return req
		}

		t.Run("refresh token ok", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				pair, err := s.AuthService.Register(t.Context(), "nk@example.com", "NK", "StrongEnoughPassword")
				require.NoError(t, err)

				// Create request and set auth cookies. Save them to verify they are rolled later
				req := createRequest(t, srvURL+RefreshURL, pair)
				firstRefreshCookie := req.Cookies()[0]
				firstAccessHeader := req.Header.Get("Authorization")
				assert.NotEmpty(t, firstRefreshCookie.Value, "refresh cookie should not be empty")
				assert.NotEmpty(t, firstAccessHeader, "access token should not be empty")

				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				defer resp.Body.Close() // nolint:errcheck

				require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
				require.JSONEq(t, `
					{
						"message": "Tokens refreshed successfully"
					}`, string(body))

				require.Equal(t, 1, len(resp.Cookies()))

				secondRefreshCookie := resp.Cookies()[0]
				require.NotEmpty(t, secondRefreshCookie.Value, "refresh cookie should not be empty")
				secondAccessHeader := resp.Header.Get("Authorization")
				require.NotEmpty(t, secondAccessHeader, "access token should not be empty")
				require.NotEqual(t, firstRefreshCookie.Value, secondRefreshCookie.Value, "refresh token should be changed after refresh")
				require.NotEqual(t, firstAccessHeader, secondAccessHeader, "access token should be changed after refresh")
			})
		})

		t.Run("replayed refresh revokes every session", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				pair, err := s.AuthService.Register(t.Context(), "nk@example.com", "NK", "StrongEnoughPassword")
				require.NoError(t, err)

				// First rotation works
				resp1, err := http.DefaultClient.Do(createRequest(t, srvURL+RefreshURL, pair))
				require.NoError(t, err, "refresh request should always complete")
				body1, err := io.ReadAll(resp1.Body)
				require.NoError(t, err)
				defer resp1.Body.Close() // nolint:errcheck
				require.Equalf(t, http.StatusOK, resp1.StatusCode, "not expected code. Body: %s", string(body1))

				// Replay of the consumed token is reuse: rejected with Forbidden
				resp2, err := http.DefaultClient.Do(createRequest(t, srvURL+RefreshURL, pair))
				require.NoError(t, err, "refresh request should always complete")
				body2, err := io.ReadAll(resp2.Body)
				require.NoError(t, err)
				defer resp2.Body.Close() // nolint:errcheck

				require.Equalf(t, http.StatusForbidden, resp2.StatusCode, "not expected code. Body: %s", string(body2))
				require.JSONEq(t, `
					{
						"error": "service_error",
						"message": "Refresh token reuse detected"
					}`, string(body2))

				// Containment: the successor token from the first rotation is dead too
				successor := resp1.Cookies()[0]
				req3, err := http.NewRequest(http.MethodPost, srvURL+RefreshURL, nil)
				require.NoError(t, err)
				req3.AddCookie(&http.Cookie{Name: successor.Name, Value: successor.Value})
				resp3, err := http.DefaultClient.Do(req3)
				require.NoError(t, err)
				body3, err := io.ReadAll(resp3.Body)
				require.NoError(t, err)
				defer resp3.Body.Close() // nolint:errcheck

				require.Equalf(t, http.StatusForbidden, resp3.StatusCode, "every session should be revoked after reuse. Body: %s", string(body3))
			})
		})

		t.Run("logout revokes exactly one session", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				first, err := s.AuthService.Register(t.Context(), "nk@example.com", "NK", "StrongEnoughPassword")
				require.NoError(t, err)
				second, err := s.AuthService.Login(t.Context(), "nk@example.com", "StrongEnoughPassword")
				require.NoError(t, err)

				resp, err := http.DefaultClient.Do(createRequest(t, srvURL+LogoutURL, first))
				require.NoError(t, err)
				defer resp.Body.Close() // nolint:errcheck

				require.Equal(t, http.StatusNoContent, resp.StatusCode)
				require.Equal(t, 1, len(resp.Cookies()))
				require.Empty(t, resp.Cookies()[0].Value, "refresh cookie should be cleared on logout")

				// Logged out session is dead, the other one still works
				respDead, err := http.DefaultClient.Do(createRequest(t, srvURL+RefreshURL, first))
				require.NoError(t, err)
				defer respDead.Body.Close() // nolint:errcheck
				require.Equal(t, http.StatusForbidden, respDead.StatusCode, "logged out session should not refresh")

				respAlive, err := http.DefaultClient.Do(createRequest(t, srvURL+RefreshURL, second))
				require.NoError(t, err)
				defer respAlive.Body.Close() // nolint:errcheck
				require.Equal(t, http.StatusOK, respAlive.StatusCode, "other sessions must survive logout")
			})
		})
	})
}
