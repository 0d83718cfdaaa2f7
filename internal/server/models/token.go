package models

import (
	"time"

	"github.com/google/uuid"
)

// Token holds the fields shared by every stored token: the one-way digest
// of the opaque token string and its validity window. The plaintext token
// is never persisted.
type Token struct {
	Hash      string
	CreatedAt time.Time
	ExpiredAt time.Time
}

// RegistrationToken links a pending newcomer to its email verification link.
// Single-use: consumed when the newcomer is verified.
type RegistrationToken struct {
	Token
	UserID uuid.UUID
}

// ChangeEmailToken carries the proposed new email of a user. The email is
// not unique-checked against users until verification.
type ChangeEmailToken struct {
	Token
	UserID uuid.UUID
	Email  string
}

// PasswordToken authorizes a single password reset for a user.
type PasswordToken struct {
	Token
	UserID uuid.UUID
}

// SessionToken is the shared shape of access and refresh tokens, both owned
// by a session.
type SessionToken struct {
	Token
	SessionID uuid.UUID
}
