package model

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a user account in the system
type Account struct {
	ID             uuid.UUID  `db:"id"`
	Email          string     `db:"email"`
	PasswordHash   string     `db:"password_hash"`
	Role           Role       `db:"role"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	LastLoginAt    *time.Time `db:"last_login_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Identity is the subset of an account that may leave the auth service:
// returned to callers and embedded in access tokens.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
}

// Identity strips credentials and counters from the account.
func (a Account) Identity() Identity {
	return Identity{ID: a.ID, Email: a.Email, Role: a.Role}
}

// AttemptRecord is the persisted login throttling state for one email.
// Version increases on every write and guards compare-and-set updates.
type AttemptRecord struct {
	Email          string     `db:"email"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	Version        int64      `db:"version"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// AccountSummary is an account as shown to administrators.
type AccountSummary struct {
	Identity
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
