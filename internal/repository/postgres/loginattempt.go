package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookverse/identity/internal/models"
)

type LoginAttemptRepo struct {
	DB DBTX
}

const getAttempt = `-- name: GetLoginAttempt
SELECT email, failed_count, locked_until, updated_at
FROM login_attempts
WHERE email = $1
`

// Unknown email is not an error: a zero value means no failures yet
func (r *LoginAttemptRepo) Get(ctx context.Context, email string) (models.LoginAttempt, error) {
	rows, _ := r.DB.Query(ctx, getAttempt, email)
	attempt, err := pgx.CollectOneRow(rows, rowToLoginAttempt)

	switch {
	case err == nil:
		return attempt, nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.LoginAttempt{Email: email}, nil
	default:
		return attempt, fmt.Errorf("db error: %w", err)
	}
}

const registerFailure = `-- name: RegisterLoginFailure
INSERT INTO login_attempts (email, failed_count, locked_until, updated_at)
VALUES ($1, 1, NULL, $2)
ON CONFLICT (email) DO UPDATE
SET failed_count = login_attempts.failed_count + 1,
    updated_at   = $2,
    locked_until = CASE
        WHEN login_attempts.failed_count + 1 >= $3 THEN $4
        ELSE login_attempts.locked_until
    END
RETURNING locked_until
`

// Count one more failure. The lock deadline is set inside the same
// statement when the counter reaches maxAttempts
func (r *LoginAttemptRepo) RegisterFailure(ctx context.Context, email string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	rows, _ := r.DB.Query(ctx, registerFailure, email, now, maxAttempts, now.Add(lockFor))
	lockedUntil, err := pgx.CollectOneRow(rows, pgx.RowTo[*time.Time])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return lockedUntil, nil
}

const resetAttempt = `-- name: ResetLoginAttempt
DELETE FROM login_attempts
WHERE email = $1
`

func (r *LoginAttemptRepo) Reset(ctx context.Context, email string) error {
	_, err := r.DB.Exec(ctx, resetAttempt, email)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToLoginAttempt(row pgx.CollectableRow) (models.LoginAttempt, error) {
	var a models.LoginAttempt
	err := row.Scan(&a.Email, &a.FailedCount, &a.LockedUntil, &a.UpdatedAt)
	return a, err
}
