package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/models"
	pkgauth "github.com/htilssu/pyrodactyl/pkg/auth"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
)

// TwoFactorSetup is returned from BeginSetup so the client can render the
// enrollment QR code.
type TwoFactorSetup struct {
	Secret    string
	QRDataURL string
}

// TwoFactorService manages account two-factor enrollment. Setup stores the
// encrypted secret without flipping the account flag; only a verified code
// turns enforcement on.
type TwoFactorService struct {
	users    UserRepository
	totp     *auth.TOTPManager
	activity ActivityRecorder
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewTwoFactorService creates a new TwoFactorService.
func NewTwoFactorService(users UserRepository, totp *auth.TOTPManager, activity ActivityRecorder, logger *slog.Logger, audit *pkglogger.AuditLogger) *TwoFactorService {
	return &TwoFactorService{
		users:    users,
		totp:     totp,
		activity: activity,
		logger:   logger,
		audit:    audit,
	}
}

// BeginSetup generates a fresh secret for the account and stores it
// encrypted. The account keeps logging in with password only until
// ConfirmSetup sees a valid code.
func (s *TwoFactorService) BeginSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.UseTOTP {
		return nil, models.ErrConflict
	}

	encrypted, nonce, plainSecret, qrDataURL, err := s.totp.GenerateSecretWithQR(user.Email)
	if err != nil {
		s.logger.Error("failed to generate totp secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.UpdateTOTP(ctx, userID, false, encrypted, nonce); err != nil {
		s.logger.Error("failed to store pending totp secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TwoFactorSetup{Secret: plainSecret, QRDataURL: qrDataURL}, nil
}

// ConfirmSetup verifies a code against the pending secret and enables
// two-factor enforcement for the account.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.UseTOTP {
		return models.ErrConflict
	}
	if len(user.TOTPSecret) == 0 {
		return models.ErrBadRequest
	}

	secret, err := s.totp.DecryptSecret(user.TOTPSecret, user.TOTPSecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt pending totp secret", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	valid, err := s.totp.ValidateCode(secret, code, nil)
	if err != nil {
		return models.ErrInternalServer
	}
	if !valid {
		return models.ErrSecondFactorInvalid
	}

	if err := s.users.UpdateTOTP(ctx, userID, true, user.TOTPSecret, user.TOTPSecretNonce); err != nil {
		s.logger.Error("failed to enable totp", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.activity.Record(ctx, models.EventTwoFactorEnabled, &userID, ipAddress, userAgent, nil)
	s.audit.LogAccountAction("two_factor_enabled", userID, ipAddress, nil)
	return nil
}

// Disable turns two-factor enforcement off after re-verifying the account
// password.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password, ipAddress, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.UseTOTP {
		return models.ErrBadRequest
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return models.ErrInvalidCredentials
	}

	if err := s.users.UpdateTOTP(ctx, userID, false, nil, nil); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to disable totp", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.activity.Record(ctx, models.EventTwoFactorDisabled, &userID, ipAddress, userAgent, nil)
	s.audit.LogAccountAction("two_factor_disabled", userID, ipAddress, nil)
	return nil
}
