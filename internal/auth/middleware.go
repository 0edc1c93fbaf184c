package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/enrollguard/internal/models"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing token claims in context
	ClaimsContextKey contextKey = "claims"
)

// TOTPHeader carries the step-up code for sensitive admin actions.
const TOTPHeader = "X-TOTP-Code"

// RequireAdmin validates an admin bearer token and injects its claims into
// the request context. Device tokens are rejected.
func RequireAdmin(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			// Parse Bearer token
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if claims.Type != models.TokenTypeAdmin {
				pkghttp.WriteForbidden(w, "admin token required")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTOTP enforces a step-up TOTP code in the X-TOTP-Code header. A nil
// verifier disables the check.
func RequireTOTP(verifier *TOTPVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := strings.TrimSpace(r.Header.Get(TOTPHeader))
			if code == "" {
				pkghttp.WriteUnauthorized(w, "totp code required")
				return
			}
			if !verifier.Verify(code) {
				pkghttp.WriteUnauthorized(w, "invalid totp code")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext extracts token claims from request context
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(ClaimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
