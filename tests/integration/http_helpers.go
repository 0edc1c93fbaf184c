//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/config"
	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/enrollguard/internal/middleware"
	"github.com/BradenHooton/enrollguard/internal/repositories"
	"github.com/BradenHooton/enrollguard/internal/routes"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkglogger "github.com/BradenHooton/enrollguard/pkg/logger"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

// TestServer wires the full stack against a real database with a fake clock
type TestServer struct {
	Router  chi.Router
	DB      *database.DB
	Clock   *clock.FakeClock
	Config  *config.Config
	Tokens  *auth.TokenManager
	Devices *repositories.DeviceRepository
}

// NewTestServer initializes the router with postgres repositories and the
// default guard thresholds.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	clk := clock.Fake(businessHours)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         testJWTSecret,
			AdminTokenExpiry:  15 * time.Minute,
			DeviceTokenExpiry: 24 * time.Hour,
		},
		Guard: config.DefaultGuardConfig(),
	}

	policy, weights, hours, err := services.PolicyFromConfig(cfg.Guard)
	if err != nil {
		panic(err)
	}

	// Initialize repositories
	profiles := repositories.NewIPProfileRepository(db)
	attempts := repositories.NewAttemptRepository(db)
	events := repositories.NewSecurityEventRepository(db)
	keys := repositories.NewRegistrationKeyRepository(db)
	orgs := repositories.NewOrganizationRepository(db)
	devices := repositories.NewDeviceRepository(db)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AdminTokenExpiry, cfg.Auth.DeviceTokenExpiry)

	auditService := services.NewAuditService(attempts, events, services.NewLogAlertNotifier(logger), logger)
	blocklist := services.NewBlocklistService(profiles, auditService, policy.BlockDuration, clk, logger)
	fingerprints := services.NewFingerprintEvaluator(cfg.Guard.WeakQualityBelow)

	guard := services.NewRegistrationGuard(services.GuardDeps{
		Profiles: profiles,
		Limiter: services.NewRateLimitService(services.RateLimitConfig{
			MaxAttemptsPerHour: policy.MaxAttemptsPerHour,
			MaxAttemptsPerDay:  policy.MaxAttemptsPerDay,
			FailureWindow:      weights.FailureWindow,
		}, logger),
		Blocklist:    blocklist,
		Keys:         services.NewKeyValidator(keys, orgs, policy.StaleKeyAge, logger),
		Fingerprints: fingerprints,
		Scorer:       services.NewRiskScorer(weights, hours, policy.HighRiskThreshold, fingerprints),
		Devices:      devices,
		Tokens:       tokenManager,
		Audit:        auditService,
		Clock:        clk,
		Logger:       logger,
	}, policy)

	stats := services.NewStatsService(attempts, profiles, devices, clk, logger)
	keyService := services.NewKeyIssuanceService(keys, orgs, auth.NewRegistrationKeyManager(), clk, logger)
	auditLogger := pkglogger.NewAuditLogger(logger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger, nil))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, routes.Handlers{
		Registration: handlers.NewRegistrationHandler(guard, nil),
		Security:     handlers.NewSecurityHandler(blocklist, auditService, stats, nil, auditLogger),
		Keys:         handlers.NewKeyHandler(keyService, nil, auditLogger),
		AdminAuth:    handlers.NewAdminAuthHandler(services.NewAdminAuthService(services.AdminCredentials{}, tokenManager, cfg.Auth.AdminTokenExpiry, nil, logger), nil),
	}, routes.Options{
		TokenManager:         tokenManager,
		RegistrationThrottle: middlewareCustom.ThrottleConfig{Requests: 1000, Window: time.Minute},
		LoginThrottle:        middlewareCustom.DefaultLoginThrottle(),
	})

	return &TestServer{
		Router:  router,
		DB:      db,
		Clock:   clk,
		Config:  cfg,
		Tokens:  tokenManager,
		Devices: devices,
	}
}

// Do sends req through the router from remoteIP
func (ts *TestServer) Do(req *http.Request, remoteIP string) *httptest.ResponseRecorder {
	req.RemoteAddr = remoteIP + ":50000"
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

// Register posts a registration request from remoteIP
func (ts *TestServer) Register(t *testing.T, remoteIP string, body handlers.RegisterDeviceRequest) *httptest.ResponseRecorder {
	t.Helper()
	return ts.Do(jsonRequest(t, http.MethodPost, "/devices/register", body, ""), remoteIP)
}

// Admin sends an authenticated admin request
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	token, err := ts.Tokens.GenerateAdminToken("ops@example.com")
	if err != nil {
		t.Fatalf("failed to generate admin token: %v", err)
	}
	return ts.Do(jsonRequest(t, method, path, body, token), "192.0.2.200")
}

func jsonRequest(t *testing.T, method, path string, body interface{}, bearer string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

// DecodeJSON decodes the recorder body into target
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
