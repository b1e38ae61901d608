package services

import (
	"context"
	"sync"
	"time"

	"github.com/htilssu/pyrodactyl/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                func(ctx context.Context, id string) (*models.User, error)
	FindByIdentifierFunc       func(ctx context.Context, identifier string) (*models.User, error)
	ListFunc                   func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc                 func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc         func(ctx context.Context, id, passwordHash string) error
	UpdateTOTPFunc             func(ctx context.Context, id string, enabled bool, secret, nonce []byte) error
	TouchTOTPAuthenticatedFunc func(ctx context.Context, id string, at time.Time) error
	DeleteFunc                 func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if m.FindByIdentifierFunc != nil {
		return m.FindByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) UpdateTOTP(ctx context.Context, id string, enabled bool, secret, nonce []byte) error {
	if m.UpdateTOTPFunc != nil {
		return m.UpdateTOTPFunc(ctx, id, enabled, secret, nonce)
	}
	return nil
}

func (m *MockUserRepository) TouchTOTPAuthenticated(ctx context.Context, id string, at time.Time) error {
	if m.TouchTOTPAuthenticatedFunc != nil {
		return m.TouchTOTPAuthenticatedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	mu       sync.Mutex
	Recorded []*models.LoginAttempt

	RecordFunc              func(ctx context.Context, attempt *models.LoginAttempt) error
	CountRecentFailuresFunc func(ctx context.Context, key string, since time.Time) (int, time.Time, error)
	DeleteExpiredFunc       func(ctx context.Context) (int64, error)
}

func (m *MockLoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recorded = append(m.Recorded, attempt)
	return nil
}

func (m *MockLoginAttemptRepository) CountRecentFailures(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	if m.CountRecentFailuresFunc != nil {
		return m.CountRecentFailuresFunc(ctx, key, since)
	}
	return 0, time.Time{}, nil
}

func (m *MockLoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockActivityRecorder captures activity events for assertions
type MockActivityRecorder struct {
	mu     sync.Mutex
	Events []RecordedActivity
}

type RecordedActivity struct {
	Event     string
	SubjectID *string
	IPAddress string
	Metadata  map[string]string
}

func (m *MockActivityRecorder) Record(ctx context.Context, event string, subjectID *string, ipAddress, userAgent string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, RecordedActivity{
		Event:     event,
		SubjectID: subjectID,
		IPAddress: ipAddress,
		Metadata:  metadata,
	})
}

func (m *MockActivityRecorder) EventNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}

// MockEmailNotifier implements EmailNotifier for testing
type MockEmailNotifier struct {
	SendPasswordChangedEmailFunc func(ctx context.Context, email string) error
	SendAccountCreatedEmailFunc  func(ctx context.Context, email, username, temporaryPassword string) error
}

func (m *MockEmailNotifier) SendPasswordChangedEmail(ctx context.Context, email string) error {
	if m.SendPasswordChangedEmailFunc != nil {
		return m.SendPasswordChangedEmailFunc(ctx, email)
	}
	return nil
}

func (m *MockEmailNotifier) SendAccountCreatedEmail(ctx context.Context, email, username, temporaryPassword string) error {
	if m.SendAccountCreatedEmailFunc != nil {
		return m.SendAccountCreatedEmailFunc(ctx, email, username, temporaryPassword)
	}
	return nil
}

// MockSubuserRepository implements SubuserRepository for testing
type MockSubuserRepository struct {
	CreateFunc             func(ctx context.Context, subuser *models.Subuser) (*models.Subuser, error)
	GetByServerAndUserFunc func(ctx context.Context, serverID, userID string) (*models.Subuser, error)
	ListForServerFunc      func(ctx context.Context, serverID string) ([]*models.SubuserWithUser, error)
	UpdatePermissionsFunc  func(ctx context.Context, id string, permissions []string) error
	DeleteFunc             func(ctx context.Context, id string) error
}

func (m *MockSubuserRepository) Create(ctx context.Context, subuser *models.Subuser) (*models.Subuser, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, subuser)
	}
	subuser.ID = "subuser_test"
	return subuser, nil
}

func (m *MockSubuserRepository) GetByServerAndUser(ctx context.Context, serverID, userID string) (*models.Subuser, error) {
	if m.GetByServerAndUserFunc != nil {
		return m.GetByServerAndUserFunc(ctx, serverID, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSubuserRepository) ListForServer(ctx context.Context, serverID string) ([]*models.SubuserWithUser, error) {
	if m.ListForServerFunc != nil {
		return m.ListForServerFunc(ctx, serverID)
	}
	return []*models.SubuserWithUser{}, nil
}

func (m *MockSubuserRepository) UpdatePermissions(ctx context.Context, id string, permissions []string) error {
	if m.UpdatePermissionsFunc != nil {
		return m.UpdatePermissionsFunc(ctx, id, permissions)
	}
	return nil
}

func (m *MockSubuserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// NewTestUser builds a password-only account for testing
func NewTestUser(id, username, email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Username:  username,
		Email:     email,
		Language:  "en",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword builds an account with a known password hash
func NewTestUserWithPassword(id, username, email, passwordHash string) *models.User {
	user := NewTestUser(id, username, email)
	user.PasswordHash = passwordHash
	return user
}
