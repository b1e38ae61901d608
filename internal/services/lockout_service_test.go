package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLockoutService(repo LoginAttemptRepository) *LockoutService {
	return NewLockoutService(repo, LockoutConfig{
		MaxFailures:      5,
		LockoutDuration:  15 * time.Minute,
		AttemptRetention: 24 * time.Hour,
		StoreTimeout:     time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLockoutKey(t *testing.T) {
	assert.Equal(t, "alice|10.0.0.1", LockoutKey("alice", "10.0.0.1"))
	assert.Equal(t, "alice|10.0.0.1", LockoutKey("  Alice ", "10.0.0.1"))
	assert.NotEqual(t, LockoutKey("alice", "10.0.0.1"), LockoutKey("alice", "10.0.0.2"))
}

func TestLockoutService_LocksAfterThreshold(t *testing.T) {
	repo := &MockLoginAttemptRepository{}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Check(ctx, key))
		svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	}

	// Fourth failure recorded, still under the threshold
	require.NoError(t, svc.Check(ctx, key))

	svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)

	err := svc.Check(ctx, key)
	require.Error(t, err)
	locked, ok := models.IsLockedOut(err)
	require.True(t, ok)
	assert.Greater(t, locked.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, locked.RetryAfter, 15*time.Minute)
}

func TestLockoutService_SuccessResetsCounter(t *testing.T) {
	repo := &MockLoginAttemptRepository{}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	for i := 0; i < 4; i++ {
		svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	}
	assert.Equal(t, 4, svc.Failures(key))

	svc.RecordSuccess(ctx, key, "alice", "10.0.0.1", "test-agent")
	assert.Equal(t, 0, svc.Failures(key))
	require.NoError(t, svc.Check(ctx, key))

	// The budget is full again after the reset
	for i := 0; i < 4; i++ {
		svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	}
	require.NoError(t, svc.Check(ctx, key))
}

func TestLockoutService_LockoutExpires(t *testing.T) {
	repo := &MockLoginAttemptRepository{}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	base := time.Now()
	svc.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	}
	require.Error(t, svc.Check(ctx, key))

	svc.now = func() time.Time { return base.Add(16 * time.Minute) }
	require.NoError(t, svc.Check(ctx, key))
	assert.Equal(t, 0, svc.Failures(key))
}

func TestLockoutService_KeysAreIndependent(t *testing.T) {
	repo := &MockLoginAttemptRepository{}
	svc := testLockoutService(repo)
	ctx := context.Background()

	aliceKey := LockoutKey("alice", "10.0.0.1")
	bobKey := LockoutKey("bob", "10.0.0.1")

	for i := 0; i < 5; i++ {
		svc.RecordFailure(ctx, aliceKey, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	}

	require.Error(t, svc.Check(ctx, aliceKey))
	require.NoError(t, svc.Check(ctx, bobKey))

	// Same identifier from another address is also unaffected
	require.NoError(t, svc.Check(ctx, LockoutKey("alice", "192.168.1.9")))
}

func TestLockoutService_PersistsAttempts(t *testing.T) {
	repo := &MockLoginAttemptRepository{}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	svc.RecordSuccess(ctx, key, "alice", "10.0.0.1", "test-agent")

	require.Len(t, repo.Recorded, 2)
	assert.False(t, repo.Recorded[0].Success)
	require.NotNil(t, repo.Recorded[0].FailureReason)
	assert.Equal(t, models.FailureInvalidCredentials, *repo.Recorded[0].FailureReason)
	assert.True(t, repo.Recorded[1].Success)
	assert.Equal(t, key, repo.Recorded[1].Key)
}

func TestLockoutService_RecoversLockoutAfterRestart(t *testing.T) {
	base := time.Now()
	repo := &MockLoginAttemptRepository{
		CountRecentFailuresFunc: func(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
			return 5, base.Add(-5 * time.Minute), nil
		},
	}

	// A fresh service has no in-memory state, as after a process restart.
	svc := testLockoutService(repo)
	svc.now = func() time.Time { return base }
	key := LockoutKey("alice", "10.0.0.1")

	err := svc.Check(context.Background(), key)
	require.Error(t, err)
	locked, ok := models.IsLockedOut(err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, locked.RetryAfter)
}

func TestLockoutService_RecoversPartialBudgetAfterRestart(t *testing.T) {
	repo := &MockLoginAttemptRepository{
		CountRecentFailuresFunc: func(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
			return 4, time.Now().Add(-time.Minute), nil
		},
	}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	// Four persisted failures leave one attempt in the budget.
	require.NoError(t, svc.Check(ctx, key))
	assert.Equal(t, 4, svc.Failures(key))

	svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	require.Error(t, svc.Check(ctx, key))
}

func TestLockoutService_RecoveryProbesCleanKeyOnce(t *testing.T) {
	probes := 0
	repo := &MockLoginAttemptRepository{
		CountRecentFailuresFunc: func(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
			probes++
			return 0, time.Time{}, nil
		},
	}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	require.NoError(t, svc.Check(ctx, key))
	require.NoError(t, svc.Check(ctx, key))
	require.NoError(t, svc.Check(ctx, key))
	assert.Equal(t, 1, probes)
}

func TestLockoutService_RecoveryStoreErrorFailsOpen(t *testing.T) {
	repo := &MockLoginAttemptRepository{
		CountRecentFailuresFunc: func(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
			return 0, time.Time{}, models.ErrTransientStore
		},
	}
	svc := testLockoutService(repo)

	require.NoError(t, svc.Check(context.Background(), LockoutKey("alice", "10.0.0.1")))
}

func TestLockoutService_StoreErrorDoesNotBlockDecision(t *testing.T) {
	repo := &MockLoginAttemptRepository{
		RecordFunc: func(ctx context.Context, attempt *models.LoginAttempt) error {
			return models.ErrTransientStore
		},
	}
	svc := testLockoutService(repo)
	ctx := context.Background()
	key := LockoutKey("alice", "10.0.0.1")

	// Counters advance even when the audit write fails
	for i := 0; i < 5; i++ {
		svc.RecordFailure(ctx, key, "alice", "10.0.0.1", "test-agent", models.FailureInvalidCredentials)
	}
	require.Error(t, svc.Check(ctx, key))
}
