package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/handlers"
	"github.com/htilssu/pyrodactyl/internal/middleware"
	"github.com/htilssu/pyrodactyl/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	userHandler *handlers.UserHandler,
	subuserHandler *handlers.SubuserHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
) {
	loginRateLimit := middleware.DefaultLoginRateLimit()

	// Public routes - the login handshake carries its own session cookie
	router.With(middleware.RateLimitByIP(loginRateLimit)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(loginRateLimit)).Post("/auth/login/checkpoint", authHandler.Checkpoint)
	router.Post("/auth/logout", authHandler.Logout)

	// Protected routes - bearer token required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokenManager, userRepo))

		r.Get("/account", accountHandler.Get)
		r.Put("/account/password", accountHandler.ChangePassword)
		r.Get("/account/activity", accountHandler.Activity)

		r.Post("/account/two-factor", twoFactorHandler.Setup)
		r.Put("/account/two-factor", twoFactorHandler.Confirm)
		r.Delete("/account/two-factor", twoFactorHandler.Disable)

		r.Get("/servers/{serverID}/users", subuserHandler.List)
		r.Post("/servers/{serverID}/users", subuserHandler.Grant)
		r.Put("/servers/{serverID}/users/{userID}", subuserHandler.Update)
		r.Delete("/servers/{serverID}/users/{userID}", subuserHandler.Revoke)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(userRepo))
			r.Get("/admin/users", userHandler.List)
			r.Post("/admin/users", userHandler.Create)
			r.Get("/admin/users/{userID}", userHandler.Get)
			r.Delete("/admin/users/{userID}", userHandler.Delete)
		})
	})
}
