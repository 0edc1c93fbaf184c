package routes

import (
	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/handlers"
	"github.com/BradenHooton/enrollguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Registration *handlers.RegistrationHandler
	Security     *handlers.SecurityHandler
	Keys         *handlers.KeyHandler
	AdminAuth    *handlers.AdminAuthHandler
}

// Options configures authentication and throttling for the routes
type Options struct {
	TokenManager         *auth.TokenManager
	TOTPVerifier         *auth.TOTPVerifier
	RegistrationThrottle middleware.ThrottleConfig
	LoginThrottle        middleware.ThrottleConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	// Public routes - throttled per client IP before reaching the guard.
	// Shed registrations are still audited.
	registrationThrottle := opts.RegistrationThrottle
	registrationThrottle.OnLimit = h.Registration.Throttled
	router.With(middleware.ThrottleByIP(registrationThrottle)).Post("/devices/register", h.Registration.Register)
	router.With(middleware.ThrottleByIP(opts.LoginThrottle)).Post("/admin/login", h.AdminAuth.Login)

	// Admin routes - admin bearer token required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(opts.TokenManager))

		r.Route("/admin/security", func(r chi.Router) {
			r.Get("/stats", h.Security.GetStats)
			r.Get("/attempts", h.Security.ListAttempts)
			r.Get("/events", h.Security.ListEvents)
			r.Get("/blocked-ips", h.Security.ListBlockedIPs)
		})

		r.Post("/admin/registration-keys", h.Keys.IssueKey)
		r.Post("/admin/organizations", h.Keys.CreateOrganization)

		// Unblocking also needs a fresh TOTP code when one is configured
		r.With(auth.RequireTOTP(opts.TOTPVerifier)).Post("/unblock-ip", h.Security.UnblockIP)
	})
}
