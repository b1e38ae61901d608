package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/htilssu/pyrodactyl/internal/models"
)

// ActivityRepository persists panel activity events.
type ActivityRepository interface {
	Record(ctx context.Context, activity *models.Activity) error
	ListForSubject(ctx context.Context, subjectID string, limit int) ([]*models.Activity, error)
}

// ActivityService records panel activity. Writes are best effort: a failed
// insert is logged and the request proceeds.
type ActivityService struct {
	repo   ActivityRepository
	logger *slog.Logger
}

// NewActivityService creates a new ActivityService.
func NewActivityService(repo ActivityRepository, logger *slog.Logger) *ActivityService {
	return &ActivityService{repo: repo, logger: logger}
}

// Record writes an activity event. The write uses its own timeout so a slow
// database cannot stall the login path.
func (s *ActivityService) Record(ctx context.Context, event string, subjectID *string, ipAddress, userAgent string, metadata map[string]string) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	activity := &models.Activity{
		Event:     event,
		SubjectID: subjectID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Metadata:  metadata,
	}

	if err := s.repo.Record(storeCtx, activity); err != nil {
		s.logger.Error("failed to record activity",
			slog.String("event", event), slog.Any("error", err))
	}
}

// ListForUser returns the most recent events attributed to a user.
func (s *ActivityService) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListForSubject(ctx, userID, limit)
}
