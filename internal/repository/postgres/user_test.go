package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookverse/identity/internal/apperrors"
	"github.com/bookverse/identity/internal/models"
	"github.com/bookverse/identity/internal/repository"
	"github.com/bookverse/identity/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newUser := repository.CreateUserParams{
		Email:        "reader@example.com",
		Name:         "Reader",
		PasswordHash: "hashedpassword123",
	}

	t.Run("create user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), newUser)

			require.NoError(t, err)
			assert.Equal(t, "reader@example.com", user.Email)
			assert.Equal(t, "Reader", user.Name)
			assert.Equal(t, "hashedpassword123", user.PasswordHash)
			assert.Equal(t, models.RoleUser, user.Role, "role should default to user")
			assert.Nil(t, user.ResetToken)
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create user with admin role", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			params := newUser
			params.Role = models.RoleAdmin

			user, err := r.CreateUser(t.Context(), params)

			require.NoError(t, err)
			assert.Equal(t, models.RoleAdmin, user.Role)
			assert.True(t, user.IsAdmin())
		})
	})

	t.Run("create user duplicate email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), newUser)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "should return well known error")
		})
	})

	t.Run("get user by id ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Email, got.Email)
			assert.Equal(t, created.PasswordHash, got.PasswordHash)
			assert.Equal(t, created.CreatedAt, got.CreatedAt)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByID(t.Context(), uuid.New())

			assert.Error(t, err, "Should return error for non-existent user")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by email ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)

			got, err := r.GetUserByEmail(t.Context(), created.Email)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Email, got.Email)
		})
	})

	t.Run("get user by email not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByEmail(t.Context(), "nobody@example.com")

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("list users ordered by creation", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			first, err := r.CreateUser(t.Context(), repository.CreateUserParams{Email: "a@example.com", Name: "A", PasswordHash: "h"})
			require.NoError(t, err)
			second, err := r.CreateUser(t.Context(), repository.CreateUserParams{Email: "b@example.com", Name: "B", PasswordHash: "h"})
			require.NoError(t, err)

			users, err := r.ListUsers(t.Context())

			require.NoError(t, err)
			require.Len(t, users, 2)
			assert.Equal(t, first.Email, users[0].Email)
			assert.Equal(t, second.Email, users[1].Email)
		})
	})

	t.Run("delete user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)

			err = r.DeleteUser(t.Context(), created.ID)
			require.NoError(t, err)

			_, err = r.GetUserByID(t.Context(), created.ID)
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "deleted user should not be found")
		})
	})

	t.Run("delete user cascades refresh tokens", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			users := UserRepo{DB: tx}
			tokens := RefreshTokenRepo{DB: tx}

			created, err := users.CreateUser(t.Context(), newUser)
			require.NoError(t, err)
			_, err = tokens.Save(t.Context(), models.RefreshToken{
				ID:        uuid.New(),
				UserID:    created.ID,
				Token:     "cascade-check",
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(time.Hour),
			})
			require.NoError(t, err)

			err = users.DeleteUser(t.Context(), created.ID)
			require.NoError(t, err)

			_, err = tokens.Get(t.Context(), "cascade-check")
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "tokens should be removed with their user")
		})
	})

	t.Run("delete user not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			err := r.DeleteUser(t.Context(), uuid.New())

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("set reset token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)
			expiresAt := time.Now().Add(time.Hour).Truncate(time.Microsecond)

			got, err := r.SetResetToken(t.Context(), created.Email, "reset-me", expiresAt)

			require.NoError(t, err)
			require.NotNil(t, got.ResetToken)
			assert.Equal(t, "reset-me", *got.ResetToken)
			require.NotNil(t, got.ResetTokenExpiresAt)
			assert.WithinDuration(t, expiresAt, *got.ResetTokenExpiresAt, 0)
		})
	})

	t.Run("set reset token unknown email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.SetResetToken(t.Context(), "nobody@example.com", "reset-me", time.Now().Add(time.Hour))

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("reset password by token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)
			_, err = r.SetResetToken(t.Context(), created.Email, "reset-me", time.Now().Add(time.Hour))
			require.NoError(t, err)

			got, err := r.ResetPasswordByToken(t.Context(), "reset-me", "newhash", time.Now())

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, "newhash", got.PasswordHash)
			assert.Nil(t, got.ResetToken, "reset token should be cleared")
			assert.Nil(t, got.ResetTokenExpiresAt, "reset token expiry should be cleared")
		})
	})

	t.Run("reset password by token is single use", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)
			_, err = r.SetResetToken(t.Context(), created.Email, "reset-me", time.Now().Add(time.Hour))
			require.NoError(t, err)

			_, err = r.ResetPasswordByToken(t.Context(), "reset-me", "newhash", time.Now())
			require.NoError(t, err)

			_, err = r.ResetPasswordByToken(t.Context(), "reset-me", "otherhash", time.Now())
			assert.ErrorIs(t, err, apperrors.ErrResetTokenInvalid, "second use of same token should fail")
		})
	})

	t.Run("reset password by expired token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), newUser)
			require.NoError(t, err)
			_, err = r.SetResetToken(t.Context(), created.Email, "reset-me", time.Now().Add(-time.Minute))
			require.NoError(t, err)

			_, err = r.ResetPasswordByToken(t.Context(), "reset-me", "newhash", time.Now())

			assert.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
		})
	})
}
