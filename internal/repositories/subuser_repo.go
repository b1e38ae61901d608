package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/htilssu/pyrodactyl/internal/database"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type SubuserRepository struct {
	pool *pgxpool.Pool
}

func NewSubuserRepository(db *database.DB) *SubuserRepository {
	return &SubuserRepository{pool: db.Pool}
}

func (r *SubuserRepository) Create(ctx context.Context, subuser *models.Subuser) (*models.Subuser, error) {
	subuser.ID = uuid.New().String()

	now := time.Now()
	subuser.CreatedAt = now
	subuser.UpdatedAt = now

	query := `
		INSERT INTO subusers (id, server_id, user_id, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		subuser.ID, subuser.ServerID, subuser.UserID,
		pq.Array(subuser.Permissions), subuser.CreatedAt, subuser.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return subuser, nil
}

func (r *SubuserRepository) GetByServerAndUser(ctx context.Context, serverID, userID string) (*models.Subuser, error) {
	query := `
		SELECT id, server_id, user_id, permissions, created_at, updated_at
		FROM subusers WHERE server_id = $1 AND user_id = $2`

	// pgx decodes text[] into []string natively; pq.Array only works on the
	// encode side here, its scanner cannot read pgx's binary array format.
	var subuser models.Subuser
	err := r.pool.QueryRow(ctx, query, serverID, userID).Scan(
		&subuser.ID, &subuser.ServerID, &subuser.UserID,
		&subuser.Permissions, &subuser.CreatedAt, &subuser.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &subuser, nil
}

// ListForServer returns subusers joined with the account fields the panel
// shows on the server access page.
func (r *SubuserRepository) ListForServer(ctx context.Context, serverID string) ([]*models.SubuserWithUser, error) {
	query := `
		SELECT s.id, s.server_id, s.user_id, s.permissions, s.created_at, s.updated_at,
			u.username, u.email, u.use_totp
		FROM subusers s
		JOIN users u ON u.id = s.user_id
		WHERE s.server_id = $1
		ORDER BY s.created_at ASC`

	rows, err := r.pool.Query(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subusers: %w", err)
	}
	defer rows.Close()

	subusers := make([]*models.SubuserWithUser, 0)
	for rows.Next() {
		var s models.SubuserWithUser
		err := rows.Scan(&s.ID, &s.ServerID, &s.UserID, &s.Permissions,
			&s.CreatedAt, &s.UpdatedAt, &s.Username, &s.Email, &s.UseTOTP)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subuser: %w", err)
		}
		subusers = append(subusers, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return subusers, nil
}

func (r *SubuserRepository) UpdatePermissions(ctx context.Context, id string, permissions []string) error {
	query := `UPDATE subusers SET permissions = $1, updated_at = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, pq.Array(permissions), time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SubuserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM subusers WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
