package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// tokenAlphabet is the character set for opaque tokens; alphanumeric only so
// the value survives URLs and email links without escaping.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TokenLength is the length of every generated opaque token string.
const TokenLength = 64

// GenerateTokenString returns a cryptographically random opaque token.
// The plaintext value is handed to the client or email link once and is
// never persisted; only its digest is stored (see HashTokenString).
func GenerateTokenString() (string, error) {
	b := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("error generating token: %w", err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}

// HashTokenString returns the deterministic one-way digest stored in place
// of the plaintext token: hex-encoded SHA-256. Lookups hash the presented
// token and match against the stored digest, so a store breach does not
// hand out valid bearer tokens.
func HashTokenString(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
