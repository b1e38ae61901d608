package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/models"
	pkgauth "github.com/htilssu/pyrodactyl/pkg/auth"
	pkghttp "github.com/htilssu/pyrodactyl/pkg/http"
)

// AccountServiceInterface covers the self-service account operations
type AccountServiceInterface interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress, userAgent string) error
}

// ActivityServiceInterface lists activity events for the account page
type ActivityServiceInterface interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.Activity, error)
}

// AccountHandler serves the authenticated user's own account endpoints
type AccountHandler struct {
	service  AccountServiceInterface
	activity ActivityServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface, activity ActivityServiceInterface, ipConfig *pkghttp.IPConfig) *AccountHandler {
	return &AccountHandler{
		service:  service,
		activity: activity,
		ipConfig: ipConfig,
	}
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// AccountResponse is the account detail payload
type AccountResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Language  string `json:"language"`
	RootAdmin bool   `json:"root_admin"`
	UseTOTP   bool   `json:"use_totp"`
}

// ActivityResponse is a single activity event in the account log
type ActivityResponse struct {
	Event     string            `json:"event"`
	IPAddress string            `json:"ip_address"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// Get returns the authenticated user's account details.
// @Router /account [get]
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]AccountResponse{"data": accountToResponse(user)})
}

// ChangePassword rotates the authenticated user's password.
// @Router /account/password [put]
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ChangePassword(r.Context(), claims.UserID,
		req.CurrentPassword, req.NewPassword,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.Header.Get("User-Agent"))
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteBadRequest(w, "The provided password is not correct.")
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, pwErr.Error())
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Activity lists the account's recent activity events.
// @Router /account/activity [get]
func (h *AccountHandler) Activity(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	events, err := h.activity.ListForUser(r.Context(), claims.UserID, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	payload := make([]ActivityResponse, 0, len(events))
	for _, e := range events {
		payload = append(payload, ActivityResponse{
			Event:     e.Event,
			IPAddress: e.IPAddress,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string][]ActivityResponse{"data": payload})
}

func accountToResponse(user *models.User) AccountResponse {
	return AccountResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Language:  user.Language,
		RootAdmin: user.RootAdmin,
		UseTOTP:   user.UseTOTP,
	}
}
