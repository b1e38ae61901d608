package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/htilssu/pyrodactyl/internal/database"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{pool: db.Pool}
}

func (r *ActivityRepository) Record(ctx context.Context, activity *models.Activity) error {
	activity.ID = uuid.New().String()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}

	var metadata []byte
	if len(activity.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(activity.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal activity metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activities (id, event, subject_id, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		activity.ID, activity.Event, activity.SubjectID,
		activity.IPAddress, activity.UserAgent, metadata, activity.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *ActivityRepository) ListForSubject(ctx context.Context, subjectID string, limit int) ([]*models.Activity, error) {
	query := `
		SELECT id, event, subject_id, ip_address, user_agent, metadata, created_at
		FROM activities WHERE subject_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*models.Activity, 0)
	for rows.Next() {
		var activity models.Activity
		var metadata []byte
		err := rows.Scan(&activity.ID, &activity.Event, &activity.SubjectID,
			&activity.IPAddress, &activity.UserAgent, &metadata, &activity.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &activity.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity metadata: %w", err)
			}
		}
		activities = append(activities, &activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return activities, nil
}
