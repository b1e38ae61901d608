package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/htilssu/pyrodactyl/internal/models"
	pkgauth "github.com/htilssu/pyrodactyl/pkg/auth"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserFixture(t *testing.T) (*UserService, *MockUserRepository, *MockActivityRecorder, *MockEmailNotifier) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := &MockUserRepository{}
	activity := &MockActivityRecorder{}
	email := &MockEmailNotifier{}
	svc := NewUserService(users, activity, email, logger, pkglogger.NewAuditLogger(logger))
	return svc, users, activity, email
}

func TestUserService_Create_GeneratesPassword(t *testing.T) {
	svc, users, _, email := newUserFixture(t)

	var createdUser *models.User
	users.CreateFunc = func(ctx context.Context, user *models.User) (*models.User, error) {
		user.ID = "user_new"
		createdUser = user
		return user, nil
	}

	var mailedPassword string
	email.SendAccountCreatedEmailFunc = func(ctx context.Context, email, username, temporaryPassword string) error {
		mailedPassword = temporaryPassword
		return nil
	}

	user, err := svc.Create(context.Background(), CreateUserInput{
		Username: "alice",
		Email:    "Alice@Example.COM",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", user.Email)
	require.NotEmpty(t, mailedPassword)
	assert.NoError(t, pkgauth.ComparePassword(createdUser.PasswordHash, mailedPassword))
	require.NotNil(t, createdUser.PasswordChangedAt)
}

func TestUserService_Create_RejectsWeakPassword(t *testing.T) {
	svc, _, _, _ := newUserFixture(t)

	_, err := svc.Create(context.Background(), CreateUserInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "short",
	})
	require.Error(t, err)

	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestUserService_Create_Conflict(t *testing.T) {
	svc, users, _, _ := newUserFixture(t)
	users.CreateFunc = func(ctx context.Context, user *models.User) (*models.User, error) {
		return nil, models.ErrConflict
	}

	_, err := svc.Create(context.Background(), CreateUserInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Correct-horse7",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUserService_ChangePassword(t *testing.T) {
	svc, users, activity, email := newUserFixture(t)
	user := NewTestUserWithPassword("user_1", "alice", "alice@example.com", testPasswordHash(t))
	users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var newHash string
	users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string) error {
		newHash = passwordHash
		return nil
	}

	var notified bool
	email.SendPasswordChangedEmailFunc = func(ctx context.Context, email string) error {
		notified = true
		return nil
	}

	err := svc.ChangePassword(context.Background(), "user_1", "Correct-horse7", "NewSecret-99x", "10.0.0.1", "test-agent")
	require.NoError(t, err)

	assert.NoError(t, pkgauth.ComparePassword(newHash, "NewSecret-99x"))
	assert.True(t, notified)
	assert.Contains(t, activity.EventNames(), models.EventPasswordChanged)
}

func TestUserService_ChangePassword_WrongCurrent(t *testing.T) {
	svc, users, _, _ := newUserFixture(t)
	user := NewTestUserWithPassword("user_1", "alice", "alice@example.com", testPasswordHash(t))
	users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var updated bool
	users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string) error {
		updated = true
		return nil
	}

	err := svc.ChangePassword(context.Background(), "user_1", "not-it", "NewSecret-99x", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.False(t, updated)
}

func TestUserService_ChangePassword_WeakReplacement(t *testing.T) {
	svc, users, _, _ := newUserFixture(t)
	user := NewTestUserWithPassword("user_1", "alice", "alice@example.com", testPasswordHash(t))
	users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	err := svc.ChangePassword(context.Background(), "user_1", "Correct-horse7", "weak", "10.0.0.1", "test-agent")
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestUserService_EmailFailureDoesNotFailChange(t *testing.T) {
	svc, users, _, email := newUserFixture(t)
	user := NewTestUserWithPassword("user_1", "alice", "alice@example.com", testPasswordHash(t))
	users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}
	email.SendPasswordChangedEmailFunc = func(ctx context.Context, email string) error {
		return models.ErrInternalServer
	}

	err := svc.ChangePassword(context.Background(), "user_1", "Correct-horse7", "NewSecret-99x", "10.0.0.1", "test-agent")
	assert.NoError(t, err)
}
