// Package common defines the shared sentinel errors used across the
// authkeeper layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Generic lookup misses. ErrorUserNotExists matches ErrorNotExists
	// via errors.Is, mirroring the taxonomy hierarchy.
	ErrorNotExists     = errors.New("not exists")
	ErrorUserNotExists = fmt.Errorf("user %w", ErrorNotExists)

	// Uniqueness and bound violations on pending records.
	ErrorUserAlreadyExists              = errors.New("user already exists")
	ErrorTooManyNewcomersWithSameEmail  = errors.New("too many active newcomers with same email")
	ErrorTooManyChangeSameEmailRequests = errors.New("too many active requests to change to same email")
	ErrorTooManyPasswordTokens          = errors.New("too many active password tokens")

	// Token lifecycle errors. An absent and an expired token are reported
	// identically so no distinction leaks to the caller.
	ErrorTokenNotFound = errors.New("token not found")

	// Credential errors.
	ErrorPasswordInvalid    = errors.New("password invalid")
	ErrorInvalidCredentials = errors.New("invalid credentials")
	ErrorWeakPassword       = errors.New("password is too weak")

	// Transaction retry budget exhausted under contention. Safe to retry
	// the whole request later.
	ErrorTransaction = errors.New("transaction error")

	// Generic internal failure surfaced to the boundary.
	ErrorInternal = errors.New("internal error")
)
