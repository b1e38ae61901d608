package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/htilssu/pyrodactyl/internal/services"
	pkghttp "github.com/htilssu/pyrodactyl/pkg/http"
)

// LoginServiceInterface defines the handshake operations the handler needs
type LoginServiceInterface interface {
	Authenticate(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	ConfirmCheckpoint(ctx context.Context, req services.CheckpointRequest) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID string)
}

// AuthHandler handles the login handshake endpoints
type AuthHandler struct {
	service       LoginServiceInterface
	ipConfig      *pkghttp.IPConfig
	cookieConfig  auth.SessionCookieConfig
	sessionMaxAge time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginServiceInterface, ipConfig *pkghttp.IPConfig, cookieConfig auth.SessionCookieConfig, sessionMaxAge time.Duration) *AuthHandler {
	return &AuthHandler{
		service:       service,
		ipConfig:      ipConfig,
		cookieConfig:  cookieConfig,
		sessionMaxAge: sessionMaxAge,
	}
}

// Request DTOs

// LoginRequest represents the request body for the first handshake step.
// User carries either a username or an email address.
type LoginRequest struct {
	User          string `json:"user" validate:"required"`
	Password      string `json:"password" validate:"required"`
	RecaptchaData string `json:"recaptcha_data"`
}

// CheckpointRequest represents the request body for the two-factor step
type CheckpointRequest struct {
	ConfirmationToken  string `json:"confirmation_token" validate:"required,len=64,alphanum"`
	AuthenticationCode string `json:"authentication_code" validate:"required,len=6,numeric"`
}

// Response DTOs

// LoginUserResponse is the account summary returned on a completed login
type LoginUserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	RootAdmin bool   `json:"root_admin"`
	UseTOTP   bool   `json:"use_totp"`
	Language  string `json:"language"`
}

// LoginData is the envelope payload for both handshake steps
type LoginData struct {
	Complete          bool               `json:"complete"`
	Intended          string             `json:"intended,omitempty"`
	ConfirmationToken string             `json:"confirmation_token,omitempty"`
	Token             string             `json:"token,omitempty"`
	User              *LoginUserResponse `json:"user,omitempty"`
}

// LoginResponse wraps the payload the way the panel API frames all data
type LoginResponse struct {
	Data LoginData `json:"data"`
}

// Login handles the first handshake step: identifier + password.
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID, _ := auth.GetSessionCookie(r, h.cookieConfig)

	result, err := h.service.Authenticate(r.Context(), services.LoginRequest{
		User:            req.User,
		Password:        req.Password,
		CaptchaResponse: req.RecaptchaData,
		SessionID:       sessionID,
		IPAddress:       pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:       r.Header.Get("User-Agent"),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.SessionID, h.sessionMaxAge, h.cookieConfig)

	if !result.Complete {
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Data: LoginData{
			Complete:          false,
			ConfirmationToken: result.ConfirmationToken,
		}})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, completedLoginResponse(result))
}

// Checkpoint handles the second handshake step: confirmation token + code.
// @Router /auth/login/checkpoint [post]
func (h *AuthHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	var req CheckpointRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID, err := auth.GetSessionCookie(r, h.cookieConfig)
	if err != nil {
		pkghttp.WriteBadRequest(w, "The token provided is not valid.")
		return
	}

	result, err := h.service.ConfirmCheckpoint(r.Context(), services.CheckpointRequest{
		SessionID:         sessionID,
		ConfirmationToken: req.ConfirmationToken,
		Code:              req.AuthenticationCode,
		IPAddress:         pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:         r.Header.Get("User-Agent"),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.SessionID, h.sessionMaxAge, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, completedLoginResponse(result))
}

// Logout destroys the caller's session and clears the cookie.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, err := auth.GetSessionCookie(r, h.cookieConfig); err == nil {
		h.service.Logout(r.Context(), sessionID)
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	w.WriteHeader(http.StatusNoContent)
}

func completedLoginResponse(result *services.LoginResult) LoginResponse {
	return LoginResponse{Data: LoginData{
		Complete: true,
		Intended: "/",
		Token:    result.AccessToken,
		User: &LoginUserResponse{
			ID:        result.User.ID,
			Username:  result.User.Username,
			Email:     result.User.Email,
			RootAdmin: result.User.RootAdmin,
			UseTOTP:   result.User.UseTOTP,
			Language:  result.User.Language,
		},
	}}
}

// writeLoginError maps handshake errors onto HTTP responses. Both invalid
// identifier and wrong password arrive here as the same error so the
// response cannot be used to enumerate accounts.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	if locked, ok := models.IsLockedOut(err); ok {
		pkghttp.WriteLockedOut(w, locked.RetryAfter)
		return
	}

	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "These credentials do not match our records.")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteBadRequest(w, "The token provided has expired, please refresh the page and try again.")
	case errors.Is(err, models.ErrTokenMismatch):
		pkghttp.WriteBadRequest(w, "The token provided is not valid.")
	case errors.Is(err, models.ErrSecondFactorInvalid):
		pkghttp.WriteBadRequest(w, "The authentication code provided is not valid.")
	case errors.Is(err, models.ErrValidationFailed):
		pkghttp.WriteBadRequest(w, "Captcha verification failed.")
	case errors.Is(err, models.ErrTransientStore):
		pkghttp.WriteServiceUnavailable(w, "Unable to reach the credential store, please try again shortly.")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
