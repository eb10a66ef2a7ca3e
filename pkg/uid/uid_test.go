package uid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProducesDistinctIDs(t *testing.T) {
	assert.NotEqual(t, New(), New())
}

func TestRememberAndSessionChainIDPrefixes(t *testing.T) {
	assert.Contains(t, RememberChainID(), "remember:")
	assert.Contains(t, SessionChainID(), "session:")
}

func TestSHA256HexIsStableAndContentAddressed(t *testing.T) {
	assert.Equal(t, SHA256Hex("hello"), SHA256Hex("hello"))
	assert.NotEqual(t, SHA256Hex("hello"), SHA256Hex("world"))
	assert.Len(t, SHA256Hex("hello"), 64)
}

func TestNowAndParseRFC3339RoundTrip(t *testing.T) {
	now := NowRFC3339()
	parsed := ParseRFC3339(now)
	assert.WithinDuration(t, time.Now().UTC(), parsed, 2*time.Second)
}

func TestParseRFC3339FallsBackOnGarbage(t *testing.T) {
	parsed := ParseRFC3339("not-a-timestamp")
	assert.WithinDuration(t, time.Now().UTC(), parsed, 2*time.Second)
}
