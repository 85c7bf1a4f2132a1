package service

import (
	"fmt"
	"strings"

	"github.com/stomacrm/clinic/internal/core/domain"
)

const (
	passwordMinLength      = 8
	resetPasswordMinLength = 6
)

// leakedPasswords are rejected when they appear anywhere in a new password,
// ignoring case.
var leakedPasswords = []string{
	"password", "12345678", "qwerty123", "letmein1", "welcome1",
	"admin123", "iloveyou", "monkey12", "dragon12", "123456789",
	"Password1!", "Qwerty123!",
}

// CheckPasswordStrength enforces the self-service registration policy. The
// returned error wraps domain.ErrWeakPassword and names the broken rule.
func CheckPasswordStrength(password string) error {
	if len(password) < passwordMinLength {
		return fmt.Errorf("%w: must be at least %d characters", domain.ErrWeakPassword, passwordMinLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("%w: needs an uppercase letter", domain.ErrWeakPassword)
	case !lower:
		return fmt.Errorf("%w: needs a lowercase letter", domain.ErrWeakPassword)
	case !digit:
		return fmt.Errorf("%w: needs a digit", domain.ErrWeakPassword)
	case !special:
		return fmt.Errorf("%w: needs a special character", domain.ErrWeakPassword)
	}

	lowered := strings.ToLower(password)
	for _, leaked := range leakedPasswords {
		if strings.Contains(lowered, strings.ToLower(leaked)) {
			return fmt.Errorf("%w: too common or found in a breach list", domain.ErrWeakPassword)
		}
	}
	return nil
}
