// Package credentials holds the email and password rules shared by the
// identity service and its clients.
package credentials

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"rentwheels/internal/apierr"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var validate = validator.New()

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail rejects malformed email addresses with apierr.ErrValidation.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return apierr.Validation("a valid email is required")
	}
	return nil
}

// ValidatePassword enforces the password policy: a minimum length plus at
// least one upper-case and one lower-case letter.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apierr.Validation("password must be at least %d characters", MinPasswordLength)
	}

	var upper, lower bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	if !upper {
		return apierr.Validation("password must contain an uppercase letter")
	}
	if !lower {
		return apierr.Validation("password must contain a lowercase letter")
	}
	return nil
}
