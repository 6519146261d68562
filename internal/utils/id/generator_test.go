package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionIDFormat(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		sid := NewSessionID()
		assert.Regexp(t, `^sess-[0-9a-f]{12}$`, sid)
		assert.True(t, IsSessionID(sid))
		seen[sid] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestIsSessionIDRejectsOthers(t *testing.T) {
	assert.False(t, IsSessionID("session-abc"))
	assert.False(t, IsSessionID("sess-ABCDEF123456"))
	assert.False(t, IsSessionID("sess-123"))
}
