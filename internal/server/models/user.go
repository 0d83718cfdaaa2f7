// Package models defines the row types persisted by the server repositories.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRole is the access level of a verified user.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is a verified account. Created only by verifying a Newcomer;
// never deleted.
type User struct {
	UserID         uuid.UUID
	Name           string
	Email          string
	CreatedAt      time.Time
	VerifiedAt     time.Time
	Role           UserRole
	MarketingAgree bool
}

// Newcomer is a pending registration. Several newcomers may share an email
// until one of them is verified; the others become inert once their
// registration tokens expire.
type Newcomer struct {
	UserID         uuid.UUID
	Name           string
	Email          string
	CreatedAt      time.Time
	MarketingAgree bool
}

// NewcomerFull carries the password hash alongside the public Newcomer
// fields; it exists only on the write path and is never returned to callers.
type NewcomerFull struct {
	Newcomer
	PasswordHash string
}

// NormalizeEmail canonicalizes an email for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims surrounding whitespace from a display name.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
