// Package uid provides small id and timestamp helpers shared across the
// thought/session memory subsystem.
package uid

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh random identifier.
func New() string {
	return uuid.NewString()
}

// RememberChainID mints a chain id for a ui_remember session.
func RememberChainID() string {
	return "remember:" + New()
}

// SessionChainID mints a chain id for a ui_start session.
func SessionChainID() string {
	return "session:" + New()
}

// NowRFC3339 returns the current wall-clock time formatted with millisecond
// precision, matching the Thought timestamp contract.
func NowRFC3339() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseRFC3339 parses a timestamp written by NowRFC3339, falling back to the
// current wall time on failure so a bad timestamp never aborts a read.
func ParseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}

// SHA256Hex returns the lowercase hex SHA-256 digest of text, used for
// embedding-cache keys and "important" embedding document keys.
func SHA256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
