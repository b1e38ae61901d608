package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/htilssu/pyrodactyl/internal/auth"
	"github.com/htilssu/pyrodactyl/internal/models"
	"github.com/htilssu/pyrodactyl/internal/services"
	pkghttp "github.com/htilssu/pyrodactyl/pkg/http"
)

// TwoFactorServiceInterface covers two-factor enrollment operations
type TwoFactorServiceInterface interface {
	BeginSetup(ctx context.Context, userID string) (*services.TwoFactorSetup, error)
	ConfirmSetup(ctx context.Context, userID, code, ipAddress, userAgent string) error
	Disable(ctx context.Context, userID, password, ipAddress, userAgent string) error
}

// TwoFactorHandler serves the account two-factor enrollment endpoints
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface, ipConfig *pkghttp.IPConfig) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, ipConfig: ipConfig}
}

// ConfirmTwoFactorRequest represents the request body for enabling two-factor
type ConfirmTwoFactorRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableTwoFactorRequest represents the request body for disabling two-factor
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// TwoFactorSetupResponse carries the enrollment secret and QR image
type TwoFactorSetupResponse struct {
	Secret    string `json:"secret"`
	ImageData string `json:"image_url_data"`
}

// Setup begins two-factor enrollment for the authenticated user.
// @Router /account/two-factor [post]
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	setup, err := h.service.BeginSetup(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled.")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]TwoFactorSetupResponse{"data": {
		Secret:    setup.Secret,
		ImageData: setup.QRDataURL,
	}})
}

// Confirm verifies a code against the pending secret and enables enforcement.
// @Router /account/two-factor [put]
func (h *TwoFactorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ConfirmTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ConfirmSetup(r.Context(), claims.UserID, req.Code,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.Header.Get("User-Agent"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSecondFactorInvalid):
			pkghttp.WriteBadRequest(w, "The authentication code provided is not valid.")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Two-factor setup has not been started.")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Disable turns off two-factor enforcement after password re-verification.
// @Router /account/two-factor [delete]
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.Disable(r.Context(), claims.UserID, req.Password,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.Header.Get("User-Agent"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteBadRequest(w, "The provided password is not correct.")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
