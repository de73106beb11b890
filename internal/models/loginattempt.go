package models

import "time"

// LoginAttempt tracks failed logins per email so repeated guessing
// locks the account for a window instead of allowing endless retries.
type LoginAttempt struct {
	Email       string
	FailedCount int
	LockedUntil *time.Time
	UpdatedAt   time.Time
}
