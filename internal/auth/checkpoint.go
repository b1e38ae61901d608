package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"
)

// ConfirmationTokenLength matches the panel's historical 64-character
// alphanumeric confirmation token format.
const ConfirmationTokenLength = 64

const confirmationTokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ConfirmationToken binds a half-proven login to a user while the second
// factor is pending. It lives only in the session's checkpoint slot and is
// never persisted.
type ConfirmationToken struct {
	UserID     string
	Value      string
	LockoutKey string // Original rate-limit key, cleared on full success
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// NewConfirmationToken mints a checkpoint token for userID with the given
// time-to-live. The value is drawn from crypto/rand.
func NewConfirmationToken(userID, lockoutKey string, ttl time.Duration) (*ConfirmationToken, error) {
	value, err := randomAlphanumeric(ConfirmationTokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate confirmation token: %w", err)
	}

	now := time.Now()
	return &ConfirmationToken{
		UserID:     userID,
		Value:      value,
		LockoutKey: lockoutKey,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// randomAlphanumeric draws n characters uniformly from the 62-symbol
// alphabet. Bytes at or above the largest multiple of 62 are discarded so
// that reducing modulo 62 cannot skew the distribution.
func randomAlphanumeric(n int) (string, error) {
	const limit = 248 // 4 * 62, the largest multiple of 62 below 256

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, confirmationTokenAlphabet[int(b)%len(confirmationTokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Expired reports whether the token's window has elapsed at the given time.
func (t *ConfirmationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Matches compares a submitted value against the token in constant time.
func (t *ConfirmationToken) Matches(submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(t.Value), []byte(submitted)) == 1
}
