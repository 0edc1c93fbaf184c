package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/background"
	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/config"
	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/enrollguard/internal/middleware"
	"github.com/BradenHooton/enrollguard/internal/repositories"
	"github.com/BradenHooton/enrollguard/internal/repositories/memory"
	"github.com/BradenHooton/enrollguard/internal/routes"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
	pkglogger "github.com/BradenHooton/enrollguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// stores is the persistence backend selected by STORE_TYPE
type stores struct {
	profiles      services.IPProfileStore
	attempts      services.AttemptRepository
	events        services.SecurityEventRepository
	keys          keyStore
	organizations services.OrganizationWriter
	devices       deviceStore
	healthCheck   func(ctx context.Context) error
	close         func()
}

type keyStore interface {
	services.RegistrationKeyRepository
	services.RegistrationKeyWriter
}

type deviceStore interface {
	services.DeviceRepository
	services.StatsDeviceRepository
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store_type", cfg.Database.StoreType),
	)

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.close()

	policy, weights, hours, err := services.PolicyFromConfig(cfg.Guard)
	if err != nil {
		logger.Error("invalid guard configuration", slog.Any("error", err))
		os.Exit(1)
	}

	clk := clock.Real()
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AdminTokenExpiry,
		cfg.Auth.DeviceTokenExpiry,
	)

	// Security alerts go to SES when configured, otherwise to the log
	var notifier services.AlertNotifier = services.NewLogAlertNotifier(logger)
	if cfg.Notify.AWSRegion != "" && cfg.Notify.FromAddress != "" && len(cfg.Notify.Recipients) > 0 {
		sesNotifier, err := services.NewSESAlertNotifier(cfg.Notify.AWSRegion, cfg.Notify.FromAddress, cfg.Notify.Recipients, logger)
		if err != nil {
			logger.Error("failed to initialize SES notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	auditService := services.NewAuditService(st.attempts, st.events, notifier, logger)
	blocklistService := services.NewBlocklistService(st.profiles, auditService, policy.BlockDuration, clk, logger)
	fingerprints := services.NewFingerprintEvaluator(cfg.Guard.WeakQualityBelow)

	guard := services.NewRegistrationGuard(services.GuardDeps{
		Profiles: st.profiles,
		Limiter: services.NewRateLimitService(services.RateLimitConfig{
			MaxAttemptsPerHour: policy.MaxAttemptsPerHour,
			MaxAttemptsPerDay:  policy.MaxAttemptsPerDay,
			FailureWindow:      weights.FailureWindow,
		}, logger),
		Blocklist:    blocklistService,
		Keys:         services.NewKeyValidator(st.keys, st.organizations, policy.StaleKeyAge, logger),
		Fingerprints: fingerprints,
		Scorer:       services.NewRiskScorer(weights, hours, policy.HighRiskThreshold, fingerprints),
		Devices:      st.devices,
		Tokens:       tokenManager,
		Audit:        auditService,
		Clock:        clk,
		Logger:       logger,
	}, policy)

	statsService := services.NewStatsService(st.attempts, st.profiles, st.devices, clk, logger)
	keyService := services.NewKeyIssuanceService(st.keys, st.organizations, auth.NewRegistrationKeyManager(), clk, logger)

	// Operator login
	var adminCreds services.AdminCredentials
	if cfg.Auth.AdminEmail != "" || cfg.Auth.AdminPassword != "" {
		adminCreds, err = services.NewAdminCredentials(cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			logger.Error("invalid admin credentials", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("no ADMIN_EMAIL or ADMIN_PASSWORD set, admin login disabled")
	}
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay: 500 * time.Millisecond,
		Jitter:    250 * time.Millisecond,
	})
	adminAuthService := services.NewAdminAuthService(adminCreds, tokenManager, cfg.Auth.AdminTokenExpiry, timingDelay, logger)

	var totpVerifier *auth.TOTPVerifier
	if cfg.Auth.AdminTOTPSecret != "" {
		totpVerifier, err = auth.NewTOTPVerifier(cfg.Auth.AdminTOTPSecret)
		if err != nil {
			logger.Error("invalid ADMIN_TOTP_SECRET", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("no ADMIN_TOTP_SECRET set, unblocking does not require a TOTP code")
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	registrationThrottle := middlewareCustom.DefaultRegistrationThrottle()
	registrationThrottle.Requests = cfg.Guard.HTTPRequestLimit
	registrationThrottle.Window = cfg.Guard.HTTPRequestWindow
	registrationThrottle.IPConfig = ipConfig
	loginThrottle := middlewareCustom.DefaultLoginThrottle()
	loginThrottle.IPConfig = ipConfig

	// Register routes
	routes.RegisterRoutes(router, routes.Handlers{
		Registration: handlers.NewRegistrationHandler(guard, ipConfig),
		Security:     handlers.NewSecurityHandler(blocklistService, auditService, statsService, ipConfig, auditLogger),
		Keys:         handlers.NewKeyHandler(keyService, ipConfig, auditLogger),
		AdminAuth:    handlers.NewAdminAuthHandler(adminAuthService, ipConfig),
	}, routes.Options{
		TokenManager:         tokenManager,
		TOTPVerifier:         totpVerifier,
		RegistrationThrottle: registrationThrottle,
		LoginThrottle:        loginThrottle,
	})

	// Health check with store
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.healthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"store":  cfg.Database.StoreType,
			})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"store":  cfg.Database.StoreType,
		})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start idle profile sweep
	cleanupManager := background.NewCleanupManager(st.profiles, logger, clk, cfg.Guard.SweepInterval, cfg.Guard.ProfileRetention)
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

	if err := auditService.WaitForAlerts(shutdownCtx); err != nil {
		logger.Warn("pending security alerts dropped at shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

// openStores connects the backend named by STORE_TYPE and applies
// migrations when requested.
func openStores(cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Database.StoreType == config.StoreTypeMemory {
		logger.Warn("using in-memory store, state is lost on restart")
		return &stores{
			profiles:      memory.NewIPProfileStore(),
			attempts:      memory.NewAttemptStore(),
			events:        memory.NewSecurityEventStore(),
			keys:          memory.NewRegistrationKeyStore(),
			organizations: memory.NewOrganizationStore(),
			devices:       memory.NewDeviceStore(),
			healthCheck:   func(context.Context) error { return nil },
			close:         func() {},
		}, nil
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &stores{
		profiles:      repositories.NewIPProfileRepository(db),
		attempts:      repositories.NewAttemptRepository(db),
		events:        repositories.NewSecurityEventRepository(db),
		keys:          repositories.NewRegistrationKeyRepository(db),
		organizations: repositories.NewOrganizationRepository(db),
		devices:       repositories.NewDeviceRepository(db),
		healthCheck:   db.HealthCheck,
		close:         db.Close,
	}, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
