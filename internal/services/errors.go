package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates no user matches the provided identifier.
	ErrUserNotFound = errors.New("services: user not found")
	// ErrCompanyNotFound indicates no company matches the provided identifier.
	ErrCompanyNotFound = errors.New("services: company not found")
	// ErrPlanNotFound indicates the referenced plan does not exist.
	ErrPlanNotFound = errors.New("services: plan not found")
	// ErrEmailTaken indicates the signup email is already registered.
	ErrEmailTaken = errors.New("services: email already registered")
	// ErrTokenInvalid indicates an unknown invitation or reset token.
	ErrTokenInvalid = errors.New("services: token invalid")
	// ErrTokenExpired indicates a known token past its expiry.
	ErrTokenExpired = errors.New("services: token expired")
	// ErrAccountNotActive indicates a login attempt on a non-active account.
	ErrAccountNotActive = errors.New("services: account not active")
	// ErrInvalidCredentials indicates an email/password mismatch.
	ErrInvalidCredentials = errors.New("services: invalid credentials")
)

// isUniqueConstraintError detects database uniqueness violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
