package logger

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameter names whose presence redacts the
// whole query string in request logs.
var sensitiveParams = map[string]struct{}{
	"key":              {},
	"registration_key": {},
	"token":            {},
	"device_token":     {},
	"password":         {},
	"secret":           {},
	"totp":             {},
	"totp_code":        {},
	"email":            {},
	"auth":             {},
}

// MaskEmail keeps the first character of the local part and the domain
// (e.g., "o***@example.com").
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}
	return email[:1] + "***" + email[at:]
}

// HasSensitiveQuery reports whether rawQuery names a parameter that must
// not reach the logs. Unparseable queries are treated as sensitive.
func HasSensitiveQuery(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}
	for name := range values {
		if _, ok := sensitiveParams[strings.ToLower(name)]; ok {
			return true
		}
	}
	return false
}
