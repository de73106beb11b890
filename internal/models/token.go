package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil until the token is rotated away
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// AuthUser is the identity decoded from a verified access token.
// It is attached to the request context by the auth middleware and
// never re-decoded downstream.
type AuthUser struct {
	ID    uuid.UUID
	Email string
}
