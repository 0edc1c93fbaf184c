package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
	pkglogger "github.com/BradenHooton/enrollguard/pkg/logger"
)

// KeyIssuanceServiceInterface defines registration key and organization management
type KeyIssuanceServiceInterface interface {
	IssueKey(ctx context.Context, organizationCode, label string, ttl time.Duration) (*services.IssuedKey, error)
	CreateOrganization(ctx context.Context, code, name string) (*models.Organization, error)
}

// KeyHandler handles registration key issuance
type KeyHandler struct {
	service     KeyIssuanceServiceInterface
	ipConfig    *pkghttp.IPConfig
	auditLogger *pkglogger.AuditLogger
}

// NewKeyHandler creates a new KeyHandler
func NewKeyHandler(service KeyIssuanceServiceInterface, ipConfig *pkghttp.IPConfig, auditLogger *pkglogger.AuditLogger) *KeyHandler {
	return &KeyHandler{
		service:     service,
		ipConfig:    ipConfig,
		auditLogger: auditLogger,
	}
}

// IssueKeyRequest represents the request body for key issuance
type IssueKeyRequest struct {
	OrganizationCode string `json:"organization_code" validate:"required,max=64"`
	Label            string `json:"label" validate:"max=128"`
	TTLHours         int    `json:"ttl_hours" validate:"gte=0,lte=8760"`
}

// CreateOrganizationRequest represents the request body for a new organization
type CreateOrganizationRequest struct {
	Code string `json:"code" validate:"required,min=2,max=64,alphanum"`
	Name string `json:"name" validate:"required,max=256"`
}

// IssueKey handles POST /admin/registration-keys
func (h *KeyHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	var req IssueKeyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	issued, err := h.service.IssueKey(r.Context(), req.OrganizationCode, req.Label, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Unknown organization")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid key lifetime")
		default:
			pkghttp.WriteInternalError(w, "Failed to issue registration key")
		}
		return
	}

	h.logAction(r, "registration_key_issued", map[string]string{
		"key_id":            issued.ID.String(),
		"organization_code": issued.OrganizationCode,
	})

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusCreated, issued)
}

// CreateOrganization handles POST /admin/organizations
func (h *KeyHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	org, err := h.service.CreateOrganization(r.Context(), req.Code, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Organization code already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Organization code and name are required")
		default:
			pkghttp.WriteInternalError(w, "Failed to create organization")
		}
		return
	}

	h.logAction(r, "organization_created", map[string]string{"organization_code": org.Code})

	pkghttp.WriteJSON(w, http.StatusCreated, org)
}

func (h *KeyHandler) logAction(r *http.Request, eventType string, metadata map[string]string) {
	if h.auditLogger == nil {
		return
	}
	actor := ""
	if claims := auth.GetClaimsFromContext(r); claims != nil {
		actor = claims.Subject
	}
	h.auditLogger.Action(r.Context(), eventType, actor, pkghttp.ExtractClientIP(r, h.ipConfig), metadata)
}
