package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bookverse/identity/internal/models"
)

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string // defaults to models.RoleUser when empty
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	ListUsers(ctx context.Context) ([]models.User, error)

	// Delete user record. The only way a credential record disappears.
	// If user not found must return apperrors.ErrUserNotFound
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Store reset token and its expiry on the user found by email
	// If user not found must return apperrors.ErrUserNotFound
	SetResetToken(ctx context.Context, email string, token string, expiresAt time.Time) (models.User, error)

	// Set new password hash and clear both reset fields in one statement,
	// keyed on the token and an unexpired window
	// If nothing matched must return apperrors.ErrResetTokenInvalid
	ResetPasswordByToken(ctx context.Context, token string, passwordHash string, now time.Time) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it is expired or used already
	// If the token does not exist must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token used in a single conditional statement.
	// Must not overwrite an existing 'usedAt': if the token is already
	// used, return the row and apperrors.ErrRefreshTokenReused
	// If the token does not exist, return apperrors.ErrRefreshTokenNotFound
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Delete exactly one token. Deleting an absent token is not an error
	Delete(ctx context.Context, tokenString string) error

	// Delete every token issued to the user. Used for reuse containment
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete the user's tokens that expired before now. Called
	// opportunistically when a new token is issued, there is no sweeper
	DeleteExpired(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// LoginAttempt repository interface
type LoginAttemptRepo interface {
	// Get attempt state for email. Unknown email returns the zero value
	Get(ctx context.Context, email string) (models.LoginAttempt, error)

	// Record one more failure. When the count reaches maxAttempts the
	// row gets locked until now+lockFor; returns the lock deadline if set
	RegisterFailure(ctx context.Context, email string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error)

	// Forget failures for email (successful login)
	Reset(ctx context.Context, email string) error
}

// Storage aggregates the repositories over one database handle
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	LoginAttempt() LoginAttemptRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
