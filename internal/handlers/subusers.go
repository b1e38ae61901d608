package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/models"
	pkghttp "github.com/htilssu/pyrodactyl/pkg/http"
)

// SubuserServiceInterface covers server access management operations
type SubuserServiceInterface interface {
	Grant(ctx context.Context, serverID, identifier string, permissions []string, actorID, ipAddress, userAgent string) (*models.Subuser, error)
	List(ctx context.Context, serverID string) ([]*models.SubuserWithUser, error)
	UpdatePermissions(ctx context.Context, serverID, userID string, permissions []string) error
	Revoke(ctx context.Context, serverID, userID, actorID, ipAddress, userAgent string) error
}

// SubuserHandler serves the per-server access endpoints
type SubuserHandler struct {
	service  SubuserServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewSubuserHandler creates a new SubuserHandler
func NewSubuserHandler(service SubuserServiceInterface, ipConfig *pkghttp.IPConfig) *SubuserHandler {
	return &SubuserHandler{service: service, ipConfig: ipConfig}
}

// GrantSubuserRequest represents the request body for adding a subuser
type GrantSubuserRequest struct {
	User        string   `json:"user" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// UpdateSubuserRequest represents the request body for replacing permissions
type UpdateSubuserRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// SubuserResponse is a single access grant with account details
type SubuserResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	UseTOTP     bool     `json:"use_totp"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
}

// GrantSubuserResponse echoes a freshly created access grant
type GrantSubuserResponse struct {
	UserID      string   `json:"user_id"`
	ServerID    string   `json:"server_id"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
}

// List returns the subusers of a server.
// @Router /servers/{serverID}/users [get]
func (h *SubuserHandler) List(w http.ResponseWriter, r *http.Request) {
	subusers, err := h.service.List(r.Context(), chi.URLParam(r, "serverID"))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	payload := make([]SubuserResponse, 0, len(subusers))
	for _, s := range subusers {
		payload = append(payload, SubuserResponse{
			UserID:      s.UserID,
			Username:    s.Username,
			Email:       s.Email,
			UseTOTP:     s.UseTOTP,
			Permissions: s.Permissions,
			CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string][]SubuserResponse{"data": payload})
}

// Grant adds an account as a subuser of a server.
// @Router /servers/{serverID}/users [post]
func (h *SubuserHandler) Grant(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req GrantSubuserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	subuser, err := h.service.Grant(r.Context(), chi.URLParam(r, "serverID"), req.User, req.Permissions,
		claims.UserID, pkghttp.ExtractClientIP(r, h.ipConfig), r.Header.Get("User-Agent"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "No account matches that username or email.")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "That account already has access to this server.")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "One or more permissions are not recognized.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]GrantSubuserResponse{"data": {
		UserID:      subuser.UserID,
		ServerID:    subuser.ServerID,
		Permissions: subuser.Permissions,
		CreatedAt:   subuser.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}})
}

// Update replaces a subuser's permission set.
// @Router /servers/{serverID}/users/{userID} [put]
func (h *SubuserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSubuserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.UpdatePermissions(r.Context(), chi.URLParam(r, "serverID"), chi.URLParam(r, "userID"), req.Permissions)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "That account does not have access to this server.")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "One or more permissions are not recognized.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Revoke removes a subuser from a server.
// @Router /servers/{serverID}/users/{userID} [delete]
func (h *SubuserHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Revoke(r.Context(), chi.URLParam(r, "serverID"), chi.URLParam(r, "userID"),
		claims.UserID, pkghttp.ExtractClientIP(r, h.ipConfig), r.Header.Get("User-Agent"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "That account does not have access to this server.")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
