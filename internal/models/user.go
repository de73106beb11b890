package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Email        string
	Name         string
	PasswordHash string
	Role         string

	// Both set during an active password reset flow, both nil otherwise
	ResetToken          *string
	ResetTokenExpiresAt *time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
