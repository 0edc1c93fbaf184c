package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
)

// AdminAuthServiceInterface defines the operator login contract
type AdminAuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress string) (*services.AdminLoginResponse, error)
}

// AdminAuthHandler handles operator authentication
type AdminAuthHandler struct {
	service  AdminAuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAdminAuthHandler creates a new AdminAuthHandler
func NewAdminAuthHandler(service AdminAuthServiceInterface, ipConfig *pkghttp.IPConfig) *AdminAuthHandler {
	return &AdminAuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// AdminLoginRequest represents the request body for operator login
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// Login handles POST /admin/login
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	resp, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
