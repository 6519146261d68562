package id

import (
	"strings"

	"github.com/google/uuid"
)

const sessionPrefix = "sess-"

// NewSessionID returns a short session identifier of the form sess-<12 hex>.
func NewSessionID() string {
	return sessionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// IsSessionID reports whether s looks like an identifier from NewSessionID.
func IsSessionID(s string) bool {
	rest, ok := strings.CutPrefix(s, sessionPrefix)
	if !ok || len(rest) != 12 {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
