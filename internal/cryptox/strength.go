package cryptox

import (
	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordStrength scores a password on the zxcvbn 0..4 scale, taking
// dictionary words, keyboard patterns and repeats into account.
func PasswordStrength(password string) int {
	return zxcvbn.PasswordStrength(password, nil).Score
}

// IsPasswordAcceptable reports whether the password reaches the configured
// minimum strength score.
func IsPasswordAcceptable(password string, minStrength int) bool {
	return PasswordStrength(password) >= minStrength
}
