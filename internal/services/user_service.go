package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/htilssu/pyrodactyl/internal/models"
	pkgauth "github.com/htilssu/pyrodactyl/pkg/auth"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
)

// EmailNotifier sends account security notifications. Failures are logged,
// never surfaced to the request.
type EmailNotifier interface {
	SendPasswordChangedEmail(ctx context.Context, email string) error
	SendAccountCreatedEmail(ctx context.Context, email, username, temporaryPassword string) error
}

// CreateUserInput holds the fields an administrator supplies when
// provisioning an account. An empty Password generates a random one.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Language  string
	RootAdmin bool
}

// UserService handles account management: provisioning, password changes,
// and deletion.
type UserService struct {
	users    UserRepository
	activity ActivityRecorder
	email    EmailNotifier
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewUserService creates a new UserService.
func NewUserService(users UserRepository, activity ActivityRecorder, email EmailNotifier, logger *slog.Logger, audit *pkglogger.AuditLogger) *UserService {
	return &UserService{
		users:    users,
		activity: activity,
		email:    email,
		logger:   logger,
		audit:    audit,
	}
}

// GetByID fetches a single user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// List returns a page of users for the admin area.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}

// Create provisions a new account. When no password is supplied a random
// one is generated and mailed to the new user.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Username == "" || input.Email == "" {
		return nil, models.ErrBadRequest
	}

	generated := false
	password := input.Password
	if password == "" {
		var err error
		password, err = pkgauth.GeneratePassword()
		if err != nil {
			s.logger.Error("failed to generate password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		generated = true
	} else if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	user := &models.User{
		Username:          input.Username,
		Email:             input.Email,
		PasswordHash:      hash,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Language:          input.Language,
		RootAdmin:         input.RootAdmin,
		PasswordChangedAt: &now,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if generated {
		if err := s.email.SendAccountCreatedEmail(ctx, created.Email, created.Username, password); err != nil {
			s.logger.Error("failed to send account created email",
				slog.String("user_id", created.ID), slog.Any("error", err))
		}
	}

	s.audit.LogAccountAction("user_created", created.ID, "", map[string]string{
		"username": created.Username,
	})
	s.logger.Info("user created", slog.String("user_id", created.ID))
	return created, nil
}

// ChangePassword rotates the account password after verifying the current
// one. Tokens issued before the change stop validating.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		s.audit.LogAccountAction("password_change_rejected", userID, ipAddress, nil)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendPasswordChangedEmail(ctx, user.Email); err != nil {
		s.logger.Error("failed to send password changed email",
			slog.String("user_id", userID), slog.Any("error", err))
	}

	s.activity.Record(ctx, models.EventPasswordChanged, &userID, ipAddress, userAgent, nil)
	s.audit.LogAccountAction("password_changed", userID, ipAddress, nil)
	return nil
}

// Delete removes an account.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.LogAccountAction("user_deleted", id, "", nil)
	return nil
}
