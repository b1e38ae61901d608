package session

import (
	"sync"
	"testing"
	"time"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(Config{
		IdleTimeout:    2 * time.Hour,
		AbsoluteExpiry: 24 * time.Hour,
	})
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager()

	sess, err := m.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.Authenticated())

	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = m.Get("no-such-session")
	assert.False(t, ok)
}

func TestManager_EstablishRotatesID(t *testing.T) {
	m := newTestManager()

	sess, err := m.Create()
	require.NoError(t, err)
	oldID := sess.ID

	newID, err := m.Establish(sess, "user123")
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)
	assert.True(t, sess.Authenticated())

	// Old identifier must stop resolving
	_, ok := m.Get(oldID)
	assert.False(t, ok)

	got, ok := m.Get(newID)
	require.True(t, ok)
	assert.Equal(t, "user123", got.UserID)
}

func TestManager_EstablishClearsCheckpoint(t *testing.T) {
	m := newTestManager()

	sess, err := m.Create()
	require.NoError(t, err)

	token, err := auth.NewConfirmationToken("user123", "key", 5*time.Minute)
	require.NoError(t, err)
	sess.PutCheckpoint(token)
	require.NotNil(t, sess.Checkpoint())

	_, err = m.Establish(sess, "user123")
	require.NoError(t, err)
	assert.Nil(t, sess.Checkpoint())
}

func TestSession_CheckpointSlot_ReplacesPrior(t *testing.T) {
	m := newTestManager()
	sess, err := m.Create()
	require.NoError(t, err)

	first, err := auth.NewConfirmationToken("user123", "key", 5*time.Minute)
	require.NoError(t, err)
	second, err := auth.NewConfirmationToken("user123", "key", 5*time.Minute)
	require.NoError(t, err)

	sess.PutCheckpoint(first)
	sess.PutCheckpoint(second)

	// Only the most recent token is live
	assert.Equal(t, second.Value, sess.Checkpoint().Value)

	sess.ClearCheckpoint()
	assert.Nil(t, sess.Checkpoint())
}

func TestSession_CheckpointSlot_ConcurrentIssue(t *testing.T) {
	m := newTestManager()
	sess, err := m.Create()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := auth.NewConfirmationToken("user123", "key", 5*time.Minute)
			assert.NoError(t, err)
			sess.PutCheckpoint(token)
			_ = sess.Checkpoint()
		}()
	}
	wg.Wait()

	// Exactly one token survives
	assert.NotNil(t, sess.Checkpoint())
}

func TestManager_ExpiryAndPrune(t *testing.T) {
	m := NewManager(Config{IdleTimeout: time.Hour, AbsoluteExpiry: 4 * time.Hour})

	current := time.Now()
	m.now = func() time.Time { return current }

	idle, err := m.Create()
	require.NoError(t, err)
	fresh, err := m.Create()
	require.NoError(t, err)

	// Keep one session active past the idle window of the other
	current = current.Add(30 * time.Minute)
	_, ok := m.Get(fresh.ID)
	require.True(t, ok)

	current = current.Add(45 * time.Minute)

	_, ok = m.Get(idle.ID)
	assert.False(t, ok, "idle session should have expired")
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)

	// Absolute expiry catches even active sessions
	current = current.Add(4 * time.Hour)
	pruned := m.PruneExpired()
	assert.Equal(t, 1, pruned)
	assert.Zero(t, m.Count())
}
