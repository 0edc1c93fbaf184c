package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14 // hashed once at startup for the bootstrap admin
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores input past 72 bytes
)

// PasswordValidationError lists every requirement the operator password
// failed. It is only reported at startup, never to HTTP clients.
type PasswordValidationError struct {
	Problems []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "password validation failed"
	}
	return "password " + strings.Join(e.Problems, "; ")
}

var weakPasswords = map[string]struct{}{
	"password1!":  {},
	"password123": {},
	"p@ssw0rd":    {},
	"changeme1!":  {},
	"admin123!":   {},
	"welcome1!":   {},
	"qwerty123!":  {},
}

type passwordRule struct {
	problem string
	ok      func(classes charClasses) bool
}

type charClasses struct {
	upper, lower, digit, symbol bool
}

var passwordRules = []passwordRule{
	{"must contain an uppercase letter", func(c charClasses) bool { return c.upper }},
	{"must contain a lowercase letter", func(c charClasses) bool { return c.lower }},
	{"must contain a digit", func(c charClasses) bool { return c.digit }},
	{"must contain a symbol", func(c charClasses) bool { return c.symbol }},
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// EqualFold compares two identifiers case-insensitively in constant time
// for equal-length inputs.
func EqualFold(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidatePassword checks the bootstrap admin password
func ValidatePassword(password string) error {
	var problems []string

	switch {
	case len(password) < MinPasswordLen:
		problems = append(problems, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	case len(password) > MaxPasswordLen:
		problems = append(problems, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	var classes charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			classes.upper = true
		case unicode.IsLower(r):
			classes.lower = true
		case unicode.IsDigit(r):
			classes.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			classes.symbol = true
		}
	}
	for _, rule := range passwordRules {
		if !rule.ok(classes) {
			problems = append(problems, rule.problem)
		}
	}

	if _, weak := weakPasswords[strings.ToLower(password)]; weak {
		problems = append(problems, "is a well-known password")
	}

	if len(problems) > 0 {
		return &PasswordValidationError{Problems: problems}
	}
	return nil
}
