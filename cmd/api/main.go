package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/background"
	"github.com/htilssu/pyrodactyl/internal/captcha"
	"github.com/htilssu/pyrodactyl/internal/config"
	"github.com/htilssu/pyrodactyl/internal/database"
	"github.com/htilssu/pyrodactyl/internal/handlers"
	middlewareCustom "github.com/htilssu/pyrodactyl/internal/middleware"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/htilssu/pyrodactyl/internal/repositories"
	"github.com/htilssu/pyrodactyl/internal/routes"
	"github.com/htilssu/pyrodactyl/internal/services"
	"github.com/htilssu/pyrodactyl/internal/session"
	pkgauth "github.com/htilssu/pyrodactyl/pkg/auth"
	pkghttp "github.com/htilssu/pyrodactyl/pkg/http"
	pkglogger "github.com/htilssu/pyrodactyl/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	activityRepo := repositories.NewActivityRepository(db)
	subuserRepo := repositories.NewSubuserRepository(db)

	// Initialize token and TOTP managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)

	lockoutService := services.NewLockoutService(loginAttemptRepo, services.LockoutConfig{
		MaxFailures:      cfg.Lockout.MaxFailures,
		LockoutDuration:  cfg.Lockout.LockoutDuration,
		AttemptRetention: cfg.Lockout.AttemptRetention,
		StoreTimeout:     cfg.Lockout.StoreTimeout,
	}, logger)

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// Captcha verification on the login endpoint
	var captchaVerifier captcha.Verifier = captcha.NoopVerifier{}
	if cfg.Recaptcha.Enabled {
		captchaVerifier = captcha.NewRecaptchaVerifier(cfg.Recaptcha.SecretKey, cfg.Recaptcha.VerifyURL, logger)
	}

	// Email notifications
	var emailService services.EmailNotifier = services.NoopEmailService{}
	if cfg.Email.Enabled {
		emailService, err = services.NewSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// In-memory login sessions
	sessionManager := session.NewManager(session.Config{
		IdleTimeout:    cfg.Session.IdleTimeout,
		AbsoluteExpiry: cfg.Session.AbsoluteExpiry,
	})

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(lockoutService, sessionManager, logger, cfg.Lockout.CleanupInterval)

	// Initialize services
	activityService := services.NewActivityService(activityRepo, logger)
	loginService := services.NewLoginService(
		userRepo,
		lockoutService,
		sessionManager,
		tokenManager,
		totpManager,
		timingDelay,
		captchaVerifier,
		activityService,
		services.LoginConfig{
			CheckpointTTL: cfg.Auth.CheckpointExpiry,
			StoreTimeout:  cfg.Auth.StoreTimeout,
		},
		logger,
		auditLogger,
	)
	userService := services.NewUserService(userRepo, activityService, emailService, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(userRepo, totpManager, activityService, logger, auditLogger)
	subuserService := services.NewSubuserService(subuserRepo, userRepo, activityService, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.SessionCookieConfig{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
	}

	authHandler := handlers.NewAuthHandler(loginService, ipConfig, cookieConfig, cfg.Session.AbsoluteExpiry)
	accountHandler := handlers.NewAccountHandler(userService, activityService, ipConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, ipConfig)
	userHandler := handlers.NewUserHandler(userService)
	subuserHandler := handlers.NewSubuserHandler(subuserService, ipConfig)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, accountHandler, twoFactorHandler, userHandler, subuserHandler, tokenManager, userRepo)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first root admin if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.FindByIdentifier(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := time.Now()
	admin := &models.User{
		Username:          "admin",
		Email:             adminEmail,
		PasswordHash:      hashedPassword,
		FirstName:         "Admin",
		RootAdmin:         true,
		PasswordChangedAt: &now,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("email", adminEmail))
	return nil
}
