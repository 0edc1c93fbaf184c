package middleware

import (
	"math"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
	"github.com/go-chi/httprate"
)

// ThrottleConfig bounds raw request volume per client IP. It sits in front
// of the registration guard and only sheds load; admission decisions are
// made by the guard itself.
type ThrottleConfig struct {
	Requests int
	Window   time.Duration
	IPConfig *pkghttp.IPConfig
	// OnLimit, when set, runs for every shed request before the 429 is
	// written.
	OnLimit http.HandlerFunc
}

// DefaultRegistrationThrottle returns 60 requests per minute
func DefaultRegistrationThrottle() ThrottleConfig {
	return ThrottleConfig{
		Requests: 60,
		Window:   time.Minute,
	}
}

// DefaultLoginThrottle returns 5 requests per minute for operator login
func DefaultLoginThrottle() ThrottleConfig {
	return ThrottleConfig{
		Requests: 5,
		Window:   time.Minute,
	}
}

// ThrottleByIP creates a middleware that limits requests by the same client
// IP the handlers see, honouring trusted proxies.
func ThrottleByIP(config ThrottleConfig) func(next http.Handler) http.Handler {
	retryAfter := int(math.Ceil(config.Window.Seconds()))

	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if config.OnLimit != nil {
				config.OnLimit(w, r)
			}
			pkghttp.SetRetryAfter(w, retryAfter)
			pkghttp.WriteTooManyRequests(w, "Too many requests")
		}),
	)
}
