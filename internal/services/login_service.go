package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/captcha"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/htilssu/pyrodactyl/internal/session"
	pkgauth "github.com/htilssu/pyrodactyl/pkg/auth"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
)

// UserRepository defines the user database operations the services need.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateTOTP(ctx context.Context, id string, enabled bool, secret, nonce []byte) error
	TouchTOTPAuthenticated(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ActivityRecorder writes panel activity events. Recording never blocks or
// fails a request.
type ActivityRecorder interface {
	Record(ctx context.Context, event string, subjectID *string, ipAddress, userAgent string, metadata map[string]string)
}

// LoginRequest carries everything the handshake needs from the HTTP layer.
type LoginRequest struct {
	User            string
	Password        string
	CaptchaResponse string
	SessionID       string
	IPAddress       string
	UserAgent       string
}

// CheckpointRequest carries the second step of a two-factor login.
type CheckpointRequest struct {
	SessionID         string
	ConfirmationToken string
	Code              string
	IPAddress         string
	UserAgent         string
}

// LoginResult is the outcome of either handshake step. When Complete is
// false the caller must come back through ConfirmCheckpoint with the
// confirmation token and a one-time code.
type LoginResult struct {
	Complete          bool
	ConfirmationToken string
	SessionID         string
	AccessToken       string
	User              *models.User
}

// LoginService drives the login handshake: lockout check, credential
// verification, the optional two-factor checkpoint, and session
// establishment.
type LoginService struct {
	users    UserRepository
	lockout  *LockoutService
	sessions *session.Manager
	tokens   *auth.TokenManager
	totp     *auth.TOTPManager
	timing   *auth.TimingDelay
	captcha  captcha.Verifier
	activity ActivityRecorder

	config      LoginConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	now func() time.Time
}

// LoginConfig holds handshake tuning knobs. StoreTimeout bounds every
// credential-store lookup; a deadline hit surfaces as a transient failure
// rather than hanging the handshake.
type LoginConfig struct {
	CheckpointTTL time.Duration
	StoreTimeout  time.Duration
}

// NewLoginService creates a new LoginService.
func NewLoginService(
	users UserRepository,
	lockout *LockoutService,
	sessions *session.Manager,
	tokens *auth.TokenManager,
	totp *auth.TOTPManager,
	timing *auth.TimingDelay,
	captchaVerifier captcha.Verifier,
	activity ActivityRecorder,
	config LoginConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *LoginService {
	return &LoginService{
		users:       users,
		lockout:     lockout,
		sessions:    sessions,
		tokens:      tokens,
		totp:        totp,
		timing:      timing,
		captcha:     captchaVerifier,
		activity:    activity,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// lookupUser runs a credential-store read under the configured short
// timeout. Any failure other than a definitive miss is transient: surfaced,
// never retried here.
func (s *LoginService) lookupUser(ctx context.Context, fetch func(context.Context) (*models.User, error)) (*models.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	user, err := fetch(storeCtx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("credential store lookup failed", slog.Any("error", err))
		return nil, models.ErrTransientStore
	}
	return user, nil
}

// Authenticate runs the first handshake step. Unknown identifiers and wrong
// passwords produce the same ErrInvalidCredentials, with a dummy hash
// comparison and a padded delay so the two cases are indistinguishable.
func (s *LoginService) Authenticate(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := s.now()

	identifier := strings.TrimSpace(req.User)
	if identifier == "" || req.Password == "" {
		return nil, models.ErrInvalidCredentials
	}

	if err := s.captcha.Verify(ctx, req.CaptchaResponse, req.IPAddress); err != nil {
		if errors.Is(err, captcha.ErrCaptchaFailed) {
			return nil, models.ErrValidationFailed
		}
		s.logger.Error("captcha verification error", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	key := LockoutKey(identifier, req.IPAddress)
	if err := s.lockout.Check(ctx, key); err != nil {
		if locked, ok := models.IsLockedOut(err); ok {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_blocked",
				Identifier:    identifier,
				IPAddress:     req.IPAddress,
				FailureReason: models.FailureLockedOut,
				Success:       false,
			})
			s.activity.Record(ctx, models.EventAuthFail, nil, req.IPAddress, req.UserAgent,
				map[string]string{"using": identifier, "reason": models.FailureLockedOut})
			return nil, locked
		}
		return nil, err
	}

	user, err := s.lookupUser(ctx, func(storeCtx context.Context) (*models.User, error) {
		return s.users.FindByIdentifier(storeCtx, identifier)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			auth.BurnPasswordHash(req.Password)
			return nil, s.failCredentials(ctx, start, key, identifier, req, nil)
		}
		return nil, err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		return nil, s.failCredentials(ctx, start, key, identifier, req, &user.ID)
	}

	if user.UseTOTP {
		return s.issueCheckpoint(ctx, req, user, key)
	}

	return s.completeLogin(ctx, req.SessionID, user, key, identifier, req.IPAddress, req.UserAgent)
}

// failCredentials records the failure, pads the response time, and returns
// the shared invalid-credentials error.
func (s *LoginService) failCredentials(ctx context.Context, start time.Time, key, identifier string, req LoginRequest, userID *string) error {
	s.lockout.RecordFailure(ctx, key, identifier, req.IPAddress, req.UserAgent, models.FailureInvalidCredentials)

	event := pkglogger.AuditEvent{
		EventType:     "login_failed",
		Identifier:    identifier,
		IPAddress:     req.IPAddress,
		FailureReason: models.FailureInvalidCredentials,
		Success:       false,
	}
	if userID != nil {
		event.UserID = *userID
	}
	s.auditLogger.LogAuthAttempt(event)
	s.activity.Record(ctx, models.EventAuthFail, userID, req.IPAddress, req.UserAgent,
		map[string]string{"using": identifier})

	s.timing.WaitFrom(start)
	return models.ErrInvalidCredentials
}

// issueCheckpoint parks a single-use confirmation token in the caller's
// session slot and tells the client to come back with a one-time code.
func (s *LoginService) issueCheckpoint(ctx context.Context, req LoginRequest, user *models.User, key string) (*LoginResult, error) {
	sess, ok := s.sessions.Get(req.SessionID)
	if !ok {
		var err error
		sess, err = s.sessions.Create()
		if err != nil {
			s.logger.Error("failed to create session for checkpoint", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	token, err := auth.NewConfirmationToken(user.ID, key, s.config.CheckpointTTL)
	if err != nil {
		s.logger.Error("failed to generate confirmation token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	sess.PutCheckpoint(token)

	s.activity.Record(ctx, models.EventAuthCheckpoint, &user.ID, req.IPAddress, req.UserAgent, nil)
	s.logger.Info("two factor checkpoint issued", slog.String("user_id", user.ID))

	return &LoginResult{
		Complete:          false,
		ConfirmationToken: token.Value,
		SessionID:         sess.ID,
	}, nil
}

// ConfirmCheckpoint runs the second handshake step. The submitted token must
// match the session slot in constant time; the one-time code must verify
// against the account's decrypted secret. A wrong code leaves the token in
// place for another try, expiry and success both consume it.
func (s *LoginService) ConfirmCheckpoint(ctx context.Context, req CheckpointRequest) (*LoginResult, error) {
	sess, ok := s.sessions.Get(req.SessionID)
	if !ok {
		return nil, models.ErrTokenMismatch
	}

	cp := sess.Checkpoint()
	if cp == nil {
		return nil, models.ErrTokenMismatch
	}

	if err := s.lockout.Check(ctx, cp.LockoutKey); err != nil {
		if locked, ok := models.IsLockedOut(err); ok {
			return nil, locked
		}
		return nil, err
	}

	if cp.Expired(s.now()) {
		sess.ClearCheckpoint()
		s.activity.Record(ctx, models.EventAuthFail, &cp.UserID, req.IPAddress, req.UserAgent,
			map[string]string{"reason": "checkpoint_expired"})
		return nil, models.ErrTokenExpired
	}

	if !cp.Matches(req.ConfirmationToken) {
		return nil, models.ErrTokenMismatch
	}

	user, err := s.lookupUser(ctx, func(storeCtx context.Context) (*models.User, error) {
		return s.users.GetByID(storeCtx, cp.UserID)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			sess.ClearCheckpoint()
			return nil, models.ErrTokenMismatch
		}
		return nil, err
	}

	secret, err := s.totp.DecryptSecret(user.TOTPSecret, user.TOTPSecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt totp secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	valid, err := s.totp.ValidateCode(secret, req.Code, user.TOTPAuthenticated)
	if err != nil {
		s.logger.Error("totp validation error", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !valid {
		s.lockout.RecordFailure(ctx, cp.LockoutKey, user.Username, req.IPAddress, req.UserAgent, models.FailureSecondFactor)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "checkpoint_failed",
			UserID:        user.ID,
			IPAddress:     req.IPAddress,
			FailureReason: models.FailureSecondFactor,
			Success:       false,
		})
		return nil, models.ErrSecondFactorInvalid
	}

	sess.ClearCheckpoint()
	if err := s.users.TouchTOTPAuthenticated(ctx, user.ID, s.now()); err != nil {
		s.logger.Error("failed to stamp totp use", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return s.completeLogin(ctx, sess.ID, user, cp.LockoutKey, user.Username, req.IPAddress, req.UserAgent)
}

// completeLogin resets the lockout counter, rotates the session onto the
// authenticated user, and mints the access token.
func (s *LoginService) completeLogin(ctx context.Context, sessionID string, user *models.User, key, identifier, ipAddress, userAgent string) (*LoginResult, error) {
	s.lockout.RecordSuccess(ctx, key, identifier, ipAddress, userAgent)

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		var err error
		sess, err = s.sessions.Create()
		if err != nil {
			s.logger.Error("failed to create session", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	newID, err := s.sessions.Establish(sess, user.ID)
	if err != nil {
		s.logger.Error("failed to establish session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "login_success",
		UserID:     user.ID,
		Identifier: identifier,
		IPAddress:  ipAddress,
		Success:    true,
	})
	s.activity.Record(ctx, models.EventAuthSuccess, &user.ID, ipAddress, userAgent,
		map[string]string{"using": identifier})
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{
		Complete:    true,
		SessionID:   newID,
		AccessToken: accessToken,
		User:        user,
	}, nil
}

// Logout destroys the session if one exists.
func (s *LoginService) Logout(ctx context.Context, sessionID string) {
	s.sessions.Destroy(sessionID)
}
