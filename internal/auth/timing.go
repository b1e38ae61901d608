package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs   int // Base delay in milliseconds
	RandomDelayMs int // Random jitter range in milliseconds
}

// TimingDelay equalizes the observable latency of handshake failures so that
// "unknown identifier" and "wrong password" cannot be told apart by timing.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// dummyHash is a bcrypt hash of a throwaway value, burned on unknown
// identifiers so both failure paths pay the hash-comparison cost.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pyrodactyl-timing-pad"), bcrypt.DefaultCost)

// BurnPasswordHash performs a bcrypt comparison that is guaranteed to fail.
// Called when no account matched the submitted identifier.
func BurnPasswordHash(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// cryptoRandIntn returns a secure random number in [0, max)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max)), nil
}

// WaitFrom sleeps until at least baseDelay+jitter has elapsed since
// startTime. Failures that already consumed time (e.g. a real bcrypt
// comparison) only pay the remainder.
func (td *TimingDelay) WaitFrom(startTime time.Time) {
	target := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if jitter, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			target += time.Duration(jitter) * time.Millisecond
		}
	}

	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
