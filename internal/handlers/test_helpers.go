package handlers

import (
	"context"

	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/htilssu/pyrodactyl/internal/services"
)

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	AuthenticateFunc      func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	ConfirmCheckpointFunc func(ctx context.Context, req services.CheckpointRequest) (*services.LoginResult, error)
	LogoutFunc            func(ctx context.Context, sessionID string)
}

func (m *MockLoginService) Authenticate(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, req)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockLoginService) ConfirmCheckpoint(ctx context.Context, req services.CheckpointRequest) (*services.LoginResult, error) {
	if m.ConfirmCheckpointFunc != nil {
		return m.ConfirmCheckpointFunc(ctx, req)
	}
	return nil, models.ErrTokenMismatch
}

func (m *MockLoginService) Logout(ctx context.Context, sessionID string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, sessionID)
	}
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword, ipAddress, userAgent string) error
}

func (m *MockAccountService) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress, userAgent string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, ipAddress, userAgent)
	}
	return nil
}
