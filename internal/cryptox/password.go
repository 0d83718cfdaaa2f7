// Package cryptox implements the credential and token cryptography used by
// the identity service: salted iterated password hashing, password strength
// scoring, and opaque token generation with one-way digests for storage.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const passwordHashPrefix = "pbkdf2-sha256"

// derived key length in bytes
const passwordKeyLength = 32

// HashPassword derives a salted PBKDF2-SHA256 hash of the password and encodes
// it as a self-describing string:
//
//	$pbkdf2-sha256$<rounds>$<base64 salt>$<base64 key>
//
// saltSize is the number of random salt bytes, rounds the iteration count.
// Both are configuration values; verification reads them back from the
// encoded string, so they can change without invalidating stored hashes.
func HashPassword(password string, saltSize, rounds int) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("error generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, rounds, passwordKeyLength, sha256.New)

	return fmt.Sprintf("$%s$%d$%s$%s",
		passwordHashPrefix,
		rounds,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword re-derives the key from the candidate password using the
// parameters stored in the encoded hash and compares it in constant time.
// A malformed hash verifies as false, never as an error the caller could
// use to distinguish accounts.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != passwordHashPrefix {
		return false
	}

	rounds, err := strconv.Atoi(parts[2])
	if err != nil || rounds <= 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(want) == 0 {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
