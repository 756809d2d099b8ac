package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
)

// TokenMatches compares a presented bearer token against the configured one in constant time.
// An empty expected token never matches so an unset token cannot be guessed.
func TokenMatches(presented, expected string) bool {
	if expected == "" || presented == "" {
		return false
	}
	// Hashing first keeps the comparison independent of the token lengths.
	p := sha256.Sum256([]byte(presented))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}

// GenerateOpsToken returns a random token suitable for GUARD_ADMIN_OPS_TOKEN.
func GenerateOpsToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
