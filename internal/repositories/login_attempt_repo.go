package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/htilssu/pyrodactyl/internal/database"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

// Record persists a single login attempt for auditing. Lockout decisions are
// made from in-memory counters; these rows exist for operators and cleanup.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.New().String()
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}

	query := `
		INSERT INTO login_attempts (id, attempt_key, identifier, ip_address, user_agent,
			attempt_time, success, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID, attempt.Key, attempt.Identifier, attempt.IPAddress, attempt.UserAgent,
		attempt.AttemptTime, attempt.Success, attempt.FailureReason, attempt.ExpiresAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// CountRecentFailures reports failed attempts for a lockout key inside the
// window, along with the most recent failure time. Used to rebuild counters
// after a restart.
func (r *LoginAttemptRepository) CountRecentFailures(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(attempt_time), to_timestamp(0))
		FROM login_attempts
		WHERE attempt_key = $1 AND success = false AND attempt_time >= $2`

	var count int
	var lastFailure time.Time
	if err := r.pool.QueryRow(ctx, query, key, since).Scan(&count, &lastFailure); err != nil {
		return 0, time.Time{}, database.MapPostgresError(err)
	}
	return count, lastFailure, nil
}

func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired login attempts: %w", err)
	}
	return result.RowsAffected(), nil
}
