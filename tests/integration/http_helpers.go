package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/captcha"
	"github.com/htilssu/pyrodactyl/internal/database"
	"github.com/htilssu/pyrodactyl/internal/handlers"
	middlewareCustom "github.com/htilssu/pyrodactyl/internal/middleware"
	"github.com/htilssu/pyrodactyl/internal/routes"
	"github.com/htilssu/pyrodactyl/internal/services"
	"github.com/htilssu/pyrodactyl/internal/session"
	pkghttp "github.com/htilssu/pyrodactyl/pkg/http"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To       string
	Kind     string
	Password string
}

// MockEmailService captures sent notifications for test assertions
type MockEmailService struct {
	mu   sync.Mutex
	Sent []SentEmail
}

func (m *MockEmailService) SendPasswordChangedEmail(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: email, Kind: "password-changed"})
	return nil
}

func (m *MockEmailService) SendAccountCreatedEmail(ctx context.Context, email, username, temporaryPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: email, Kind: "account-created", Password: temporaryPassword})
	return nil
}

// LastEmail returns the most recent notification, or nil
func (m *MockEmailService) LastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// TestServer wraps httptest.Server with the full panel dependency graph
type TestServer struct {
	Server       *httptest.Server
	Client       *http.Client
	DB           *database.DB
	EmailService *MockEmailService
	Sessions     *session.Manager
	TOTPManager  *auth.TOTPManager
	TokenManager *auth.TokenManager
}

// NewTestServer wires the full HTTP stack against a real database. Captcha is
// disabled, email is captured, and the timing delay is zeroed to keep tests
// fast.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	userRepo, loginAttemptRepo, activityRepo, subuserRepo := InitializeRepositories(db)

	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", time.Hour)

	totpManager, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "PyrodactylTest")
	if err != nil {
		panic(err)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	lockoutService := services.NewLockoutService(loginAttemptRepo, services.LockoutConfig{
		MaxFailures:      5,
		LockoutDuration:  15 * time.Minute,
		AttemptRetention: 24 * time.Hour,
		StoreTimeout:     3 * time.Second,
	}, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	sessionManager := session.NewManager(session.Config{
		IdleTimeout:    time.Hour,
		AbsoluteExpiry: 24 * time.Hour,
	})

	mockEmail := &MockEmailService{}

	activityService := services.NewActivityService(activityRepo, logger)
	loginService := services.NewLoginService(
		userRepo,
		lockoutService,
		sessionManager,
		tokenManager,
		totpManager,
		timingDelay,
		captcha.NoopVerifier{},
		activityService,
		services.LoginConfig{
			CheckpointTTL: 5 * time.Minute,
			StoreTimeout:  3 * time.Second,
		},
		logger,
		auditLogger,
	)
	userService := services.NewUserService(userRepo, activityService, mockEmail, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(userRepo, totpManager, activityService, logger, auditLogger)
	subuserService := services.NewSubuserService(subuserRepo, userRepo, activityService, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{}
	cookieConfig := auth.SessionCookieConfig{Name: "pyrodactyl_session"}

	authHandler := handlers.NewAuthHandler(loginService, ipConfig, cookieConfig, 24*time.Hour)
	accountHandler := handlers.NewAccountHandler(userService, activityService, ipConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, ipConfig)
	userHandler := handlers.NewUserHandler(userService)
	subuserHandler := handlers.NewSubuserHandler(subuserService, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, accountHandler, twoFactorHandler, userHandler, subuserHandler, tokenManager, userRepo)

	server := httptest.NewServer(r)

	// Cookie jar keeps the handshake session across the login and
	// checkpoint requests, like a browser would.
	jar, _ := cookiejar.New(nil)

	return &TestServer{
		Server:       server,
		Client:       &http.Client{Jar: jar},
		DB:           db,
		EmailService: mockEmail,
		Sessions:     sessionManager,
		TOTPManager:  totpManager,
		TokenManager: tokenManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// ResetClient swaps in a fresh cookie jar, simulating a new browser
func (ts *TestServer) ResetClient() {
	jar, _ := cookiejar.New(nil)
	ts.Client = &http.Client{Jar: jar}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return ts.Client.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// LoginData mirrors the login endpoint response envelope
type LoginData struct {
	Complete          bool   `json:"complete"`
	Intended          string `json:"intended,omitempty"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	Token             string `json:"token,omitempty"`
}

// ParseLoginResponse decodes the data envelope of a login or checkpoint response
func ParseLoginResponse(resp *http.Response) (*LoginData, error) {
	var envelope struct {
		Data LoginData `json:"data"`
	}
	if err := ParseJSONResponse(resp, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// GetErrorMessage extracts the error message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["error"].(string); ok {
		return msg, nil
	}
	return "", nil
}
