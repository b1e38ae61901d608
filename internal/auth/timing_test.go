package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_EnforcesMinimum(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 50, RandomDelayMs: 0})

	start := time.Now()
	td.WaitFrom(start)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestTimingDelay_WaitFrom_SkipsWhenAlreadyElapsed(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 20, RandomDelayMs: 0})

	// Pretend the work started well before the target window
	start := time.Now().Add(-200 * time.Millisecond)

	before := time.Now()
	td.WaitFrom(start)
	assert.Less(t, time.Since(before), 15*time.Millisecond)
}

func TestTimingDelay_WaitFrom_Jitter(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 10, RandomDelayMs: 30})

	start := time.Now()
	td.WaitFrom(start)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	// Base + full jitter range plus scheduling slop
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestBurnPasswordHash_DoesNotPanic(t *testing.T) {
	BurnPasswordHash("any-password")
	BurnPasswordHash("")
}

func TestCryptoRandIntn_Bounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		n, err := cryptoRandIntn(10)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 10)
	}

	n, err := cryptoRandIntn(0)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
