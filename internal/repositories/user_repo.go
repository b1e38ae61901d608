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

const userColumns = `id, username, email, password_hash, first_name, last_name, language,
	root_admin, use_totp, totp_secret, totp_secret_nonce, totp_authenticated_at,
	password_changed_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string
	var totpAuthenticated, passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &passwordHash,
		&user.FirstName, &user.LastName, &user.Language,
		&user.RootAdmin, &user.UseTOTP, &user.TOTPSecret, &user.TOTPSecretNonce,
		&totpAuthenticated, &passwordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	user.TOTPAuthenticated = totpAuthenticated
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// FindByIdentifier resolves a login identifier that may be either a username
// or an email address. Exactly one row matches because both columns carry
// unique constraints.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1 OR email = $1`, userColumns)
	return scanUserRow(r.pool.QueryRow(ctx, query, identifier))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Language == "" {
		user.Language = "en"
	}

	query := fmt.Sprintf(`
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, language,
			root_admin, use_totp, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING %s`, userColumns)

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, passwordHash,
		user.FirstName, user.LastName, user.Language,
		user.RootAdmin, user.UseTOTP,
		user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	))
}

// UpdatePassword swaps the active password hash and stamps the change time
// so previously issued tokens stop validating.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $1, password_changed_at = $2, updated_at = $2
		WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateTOTP stores or clears the account's second-factor enrollment.
func (r *UserRepository) UpdateTOTP(ctx context.Context, id string, enabled bool, secret, nonce []byte) error {
	query := `
		UPDATE users SET use_totp = $1, totp_secret = $2, totp_secret_nonce = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.pool.Exec(ctx, query, enabled, secret, nonce, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TouchTOTPAuthenticated records the time of the latest successful checkpoint
// for code replay prevention.
func (r *UserRepository) TouchTOTPAuthenticated(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET totp_authenticated_at = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, query, at, id)
	return database.MapPostgresError(err)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
