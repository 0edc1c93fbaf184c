package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
	pkglogger "github.com/BradenHooton/enrollguard/pkg/logger"
)

// defaultQueryRange applies when a time-range query omits "from"
const defaultQueryRange = 24 * time.Hour

// BlocklistServiceInterface defines the operator view of the block list
type BlocklistServiceInterface interface {
	Unblock(ctx context.Context, ip, actor string) (*services.UnblockResult, error)
	ListBlocked(ctx context.Context) ([]*models.IPProfile, error)
}

// AuditServiceInterface defines the audit log queries
type AuditServiceInterface interface {
	ListAttempts(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error)
	ListEvents(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error)
}

// StatsServiceInterface defines the dashboard statistics contract
type StatsServiceInterface interface {
	GetSecurityStats(ctx context.Context) (*services.SecurityStats, error)
}

// SecurityHandler serves the operator security endpoints
type SecurityHandler struct {
	blocklist   BlocklistServiceInterface
	audit       AuditServiceInterface
	stats       StatsServiceInterface
	ipConfig    *pkghttp.IPConfig
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(blocklist BlocklistServiceInterface, audit AuditServiceInterface, stats StatsServiceInterface, ipConfig *pkghttp.IPConfig, auditLogger *pkglogger.AuditLogger) *SecurityHandler {
	return &SecurityHandler{
		blocklist:   blocklist,
		audit:       audit,
		stats:       stats,
		ipConfig:    ipConfig,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// UnblockIPRequest represents the request body for an unblock
type UnblockIPRequest struct {
	IPAddress string `json:"ip_address" validate:"required,ip"`
}

// BlockedIPResponse describes one currently blocked address
type BlockedIPResponse struct {
	IPAddress           string    `json:"ip_address"`
	BlockedUntil        time.Time `json:"blocked_until"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastAttemptAt       time.Time `json:"last_attempt_at"`
}

// UnblockIP handles POST /unblock-ip
func (h *SecurityHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	var req UnblockIPRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	actor := ""
	if claims := auth.GetClaimsFromContext(r); claims != nil {
		actor = claims.Subject
	}

	// Profiles are keyed by the canonical form
	ip, _ := pkghttp.CanonicalIP(req.IPAddress)

	result, err := h.blocklist.Unblock(r.Context(), ip, actor)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No record for this IP address")
			return
		}
		pkghttp.WriteServiceUnavailable(w, int(storageRetryAfter.Seconds()), "Failed to unblock IP address")
		return
	}

	if h.auditLogger != nil {
		h.auditLogger.Action(r.Context(), "ip_unblocked", actor, pkghttp.ExtractClientIP(r, h.ipConfig), map[string]string{
			"target_ip":   result.IP,
			"was_blocked": strconv.FormatBool(result.WasBlocked),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// GetStats handles GET /admin/security/stats
func (h *SecurityHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetSecurityStats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve security stats")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// ListAttempts handles GET /admin/security/attempts
// Accepts ?from=&to= (RFC 3339), ?ip= and ?limit=N (1-1000, default 100).
func (h *SecurityHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := h.parseRange(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sourceIP := ""
	if raw := r.URL.Query().Get("ip"); raw != "" {
		var ok bool
		if sourceIP, ok = pkghttp.CanonicalIP(raw); !ok {
			pkghttp.WriteBadRequest(w, "ip must be a valid IP address")
			return
		}
	}

	records, err := h.audit.ListAttempts(r.Context(), models.AttemptQuery{
		From:     from,
		To:       to,
		SourceIP: sourceIP,
		Limit:    limit,
	})
	if err != nil {
		writeQueryError(w, err, "Failed to retrieve registration attempts")
		return
	}
	if records == nil {
		records = []*models.AttemptRecord{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, records)
}

// ListEvents handles GET /admin/security/events
// Accepts ?from=&to= (RFC 3339), ?type= and ?limit=N.
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := h.parseRange(r)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	eventType := models.SecurityEventType(strings.TrimSpace(r.URL.Query().Get("type")))
	switch eventType {
	case "", models.SecurityEventBlocked, models.SecurityEventUnblocked, models.SecurityEventHighRiskFlagged:
	default:
		pkghttp.WriteBadRequest(w, "type must be one of: blocked, unblocked, high_risk_flagged")
		return
	}

	events, err := h.audit.ListEvents(r.Context(), models.EventQuery{
		From:  from,
		To:    to,
		Type:  eventType,
		Limit: limit,
	})
	if err != nil {
		writeQueryError(w, err, "Failed to retrieve security events")
		return
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, events)
}

// ListBlockedIPs handles GET /admin/security/blocked-ips
func (h *SecurityHandler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.blocklist.ListBlocked(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve blocked IPs")
		return
	}

	resp := make([]BlockedIPResponse, 0, len(profiles))
	for _, p := range profiles {
		entry := BlockedIPResponse{
			IPAddress:           p.IP,
			ConsecutiveFailures: p.ConsecutiveFailures,
			LastAttemptAt:       p.LastAttemptAt,
		}
		if p.BlockedUntil != nil {
			entry.BlockedUntil = *p.BlockedUntil
		}
		resp = append(resp, entry)
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// parseRange reads from, to and limit. Missing bounds default to the last
// 24 hours ending now.
func (h *SecurityHandler) parseRange(r *http.Request) (time.Time, time.Time, int, error) {
	q := r.URL.Query()

	to := h.now()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("to must be an RFC 3339 timestamp")
		}
		to = t
	}

	from := to.Add(-defaultQueryRange)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("from must be an RFC 3339 timestamp")
		}
		from = t
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return time.Time{}, time.Time{}, 0, errors.New("limit must be a positive integer")
		}
		limit = n
	}

	return from, to, limit, nil
}

func writeQueryError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, models.ErrBadRequest) {
		pkghttp.WriteBadRequest(w, "from must be before to")
		return
	}
	pkghttp.WriteInternalError(w, msg)
}
