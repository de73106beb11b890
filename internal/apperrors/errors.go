package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenReused   = errors.New("refresh token reuse detected")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrResetTokenInvalid = errors.New("reset token is invalid or expired")
)

// LoginLockedError reports that login for an email is temporarily
// locked after too many failed attempts.
type LoginLockedError struct {
	Until time.Time
}

func (e LoginLockedError) Error() string {
	return fmt.Sprintf("login locked until %s", e.Until.Format(time.RFC3339))
}
