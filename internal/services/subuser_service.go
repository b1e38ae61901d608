package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/htilssu/pyrodactyl/internal/models"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
)

// SubuserRepository persists per-server access grants.
type SubuserRepository interface {
	Create(ctx context.Context, subuser *models.Subuser) (*models.Subuser, error)
	GetByServerAndUser(ctx context.Context, serverID, userID string) (*models.Subuser, error)
	ListForServer(ctx context.Context, serverID string) ([]*models.SubuserWithUser, error)
	UpdatePermissions(ctx context.Context, id string, permissions []string) error
	Delete(ctx context.Context, id string) error
}

// knownPermissions is the set of grantable subuser permissions.
var knownPermissions = map[string]bool{
	"control.console": true,
	"control.start":   true,
	"control.stop":    true,
	"control.restart": true,
	"user.create":     true,
	"user.read":       true,
	"user.update":     true,
	"user.delete":     true,
	"file.create":     true,
	"file.read":       true,
	"file.update":     true,
	"file.delete":     true,
	"file.archive":    true,
	"backup.create":   true,
	"backup.read":     true,
	"backup.delete":   true,
	"backup.restore":  true,
}

// SubuserService grants and revokes per-server access for existing accounts.
type SubuserService struct {
	subusers SubuserRepository
	users    UserRepository
	activity ActivityRecorder
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewSubuserService creates a new SubuserService.
func NewSubuserService(subusers SubuserRepository, users UserRepository, activity ActivityRecorder, logger *slog.Logger, audit *pkglogger.AuditLogger) *SubuserService {
	return &SubuserService{
		subusers: subusers,
		users:    users,
		activity: activity,
		logger:   logger,
		audit:    audit,
	}
}

// normalizePermissions rejects unknown permissions and deduplicates the rest.
func normalizePermissions(permissions []string) ([]string, error) {
	seen := make(map[string]bool, len(permissions))
	result := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if !knownPermissions[p] {
			return nil, models.ErrBadRequest
		}
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Grant adds an account as a subuser of a server. The account is looked up
// by username or email, matching how the panel's access page works.
func (s *SubuserService) Grant(ctx context.Context, serverID, identifier string, permissions []string, actorID, ipAddress, userAgent string) (*models.Subuser, error) {
	perms, err := normalizePermissions(permissions)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if _, err := s.subusers.GetByServerAndUser(ctx, serverID, user.ID); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing subuser", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	subuser, err := s.subusers.Create(ctx, &models.Subuser{
		ServerID:    serverID,
		UserID:      user.ID,
		Permissions: perms,
	})
	if err != nil {
		s.logger.Error("failed to create subuser", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.activity.Record(ctx, models.EventSubuserCreated, &actorID, ipAddress, userAgent, map[string]string{
		"server_id": serverID,
		"user_id":   user.ID,
	})
	s.audit.LogAccountAction("subuser_granted", user.ID, ipAddress, map[string]string{
		"server_id": serverID,
		"actor_id":  actorID,
	})
	return subuser, nil
}

// List returns the subusers of a server with their account details.
func (s *SubuserService) List(ctx context.Context, serverID string) ([]*models.SubuserWithUser, error) {
	return s.subusers.ListForServer(ctx, serverID)
}

// UpdatePermissions replaces a subuser's permission set.
func (s *SubuserService) UpdatePermissions(ctx context.Context, serverID, userID string, permissions []string) error {
	perms, err := normalizePermissions(permissions)
	if err != nil {
		return err
	}

	subuser, err := s.subusers.GetByServerAndUser(ctx, serverID, userID)
	if err != nil {
		return err
	}
	return s.subusers.UpdatePermissions(ctx, subuser.ID, perms)
}

// Revoke removes a subuser from a server.
func (s *SubuserService) Revoke(ctx context.Context, serverID, userID, actorID, ipAddress, userAgent string) error {
	subuser, err := s.subusers.GetByServerAndUser(ctx, serverID, userID)
	if err != nil {
		return err
	}

	if err := s.subusers.Delete(ctx, subuser.ID); err != nil {
		return err
	}

	s.activity.Record(ctx, models.EventSubuserDeleted, &actorID, ipAddress, userAgent, map[string]string{
		"server_id": serverID,
		"user_id":   userID,
	})
	return nil
}
