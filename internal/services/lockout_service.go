package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/htilssu/pyrodactyl/internal/models"
)

// LoginAttemptRepository persists attempt records for auditing and counter
// recovery after restarts.
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, key string, since time.Time) (int, time.Time, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// LockoutConfig holds thresholds for failed-attempt lockout.
type LockoutConfig struct {
	MaxFailures      int
	LockoutDuration  time.Duration
	AttemptRetention time.Duration
	StoreTimeout     time.Duration
}

type lockoutEntry struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// LockoutService tracks consecutive login failures per identifier+IP key and
// blocks further attempts once the threshold is crossed. Decisions come from
// in-memory counters so a check and its recording stay atomic under one
// mutex; the repository keeps an audit trail and survives restarts.
type LockoutService struct {
	mu      sync.Mutex
	entries map[string]*lockoutEntry

	repo   LoginAttemptRepository
	config LockoutConfig
	logger *slog.Logger

	now func() time.Time
}

// NewLockoutService creates a new LockoutService.
func NewLockoutService(repo LoginAttemptRepository, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		entries: make(map[string]*lockoutEntry),
		repo:    repo,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// LockoutKey derives the counter key for an attempt. The identifier is
// lowercased so "Alice" and "alice" share a counter; the client IP keeps
// attackers from exhausting a victim's budget from elsewhere.
func LockoutKey(identifier, clientIP string) string {
	return strings.ToLower(strings.TrimSpace(identifier)) + "|" + clientIP
}

// Check reports whether an attempt under the key may proceed. When the key is
// locked it returns a LockedOutError carrying the remaining lockout time. A
// key never seen by this process has its counter rebuilt from the persisted
// attempts first, so a restart does not clear active lockouts.
func (s *LockoutService) Check(ctx context.Context, key string) error {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		recovered := s.recoverEntry(ctx, key)
		s.mu.Lock()
		if entry, ok = s.entries[key]; !ok {
			entry = recovered
			if entry != nil {
				s.entries[key] = entry
			}
		}
	}
	defer s.mu.Unlock()

	if entry == nil {
		return nil
	}

	now := s.now()
	if !entry.lockedUntil.IsZero() {
		if now.Before(entry.lockedUntil) {
			return &models.LockedOutError{RetryAfter: entry.lockedUntil.Sub(now)}
		}
		// Lockout elapsed, the key starts fresh.
		delete(s.entries, key)
		return nil
	}

	if now.Sub(entry.windowStart) > s.config.LockoutDuration {
		delete(s.entries, key)
	}
	return nil
}

// recoverEntry rebuilds a key's counter from the attempt table. A zero-count
// entry is still cached so a clean key is probed at most once per window.
// Store errors fail open: the audit trail degrades, never availability.
func (s *LockoutService) recoverEntry(ctx context.Context, key string) *lockoutEntry {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	now := s.now()
	count, lastFailure, err := s.repo.CountRecentFailures(storeCtx, key, now.Add(-s.config.LockoutDuration))
	if err != nil {
		s.logger.Error("failed to recover lockout counter", slog.Any("error", err))
		return nil
	}

	entry := &lockoutEntry{failures: count, windowStart: now}
	if count > 0 {
		entry.windowStart = lastFailure
	}
	if count >= s.config.MaxFailures {
		entry.lockedUntil = lastFailure.Add(s.config.LockoutDuration)
	}
	return entry
}

// RecordFailure bumps the key's failure counter, locks the key when the
// threshold is reached, and persists the attempt for auditing. Storage
// errors are logged and swallowed: the in-memory counter already advanced,
// so the security decision is unaffected.
func (s *LockoutService) RecordFailure(ctx context.Context, key, identifier, ipAddress, userAgent, reason string) {
	s.mu.Lock()
	now := s.now()

	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) > s.config.LockoutDuration {
		entry = &lockoutEntry{windowStart: now}
		s.entries[key] = entry
	}

	entry.failures++
	if entry.failures >= s.config.MaxFailures {
		entry.lockedUntil = now.Add(s.config.LockoutDuration)
		s.logger.Warn("login key locked out",
			slog.String("ip_address", ipAddress),
			slog.Int("failures", entry.failures),
			slog.Duration("lockout_duration", s.config.LockoutDuration))
	}
	s.mu.Unlock()

	s.persistAttempt(ctx, key, identifier, ipAddress, userAgent, false, &reason)
}

// RecordSuccess resets the key's counter and persists a successful attempt.
func (s *LockoutService) RecordSuccess(ctx context.Context, key, identifier, ipAddress, userAgent string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	s.persistAttempt(ctx, key, identifier, ipAddress, userAgent, true, nil)
}

// Failures returns the current failure count for a key.
func (s *LockoutService) Failures(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		return entry.failures
	}
	return 0
}

func (s *LockoutService) persistAttempt(ctx context.Context, key, identifier, ipAddress, userAgent string, success bool, reason *string) {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	attempt := &models.LoginAttempt{
		Key:           key,
		Identifier:    identifier,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		AttemptTime:   s.now(),
		Success:       success,
		FailureReason: reason,
		ExpiresAt:     s.now().Add(s.config.AttemptRetention),
	}

	if err := s.repo.Record(storeCtx, attempt); err != nil {
		s.logger.Error("failed to persist login attempt", slog.Any("error", err))
	}
}

// CleanupExpired removes attempt records past their retention window.
func (s *LockoutService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}
