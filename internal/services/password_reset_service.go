package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/pkg/crypto"
	"github.com/proserveapp/proserve/pkg/logger"
	"github.com/proserveapp/proserve/pkg/mail"
)

const (
	defaultResetExpiry     = time.Hour
	defaultResetTokenBytes = 32
)

// PasswordResetOption customises PasswordResetService behaviour.
type PasswordResetOption func(*PasswordResetService)

// WithResetClock injects a custom clock primarily for testing.
func WithResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithResetExpiry overrides the reset token lifetime.
func WithResetExpiry(d time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithResetMailer wires the outbound mailer for reset emails.
func WithResetMailer(mailer mail.Mailer) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.mailer = mailer
	}
}

// WithResetFrontendURL sets the base URL embedded in reset links.
func WithResetFrontendURL(url string) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.frontendURL = strings.TrimRight(url, "/")
	}
}

// PasswordResetService issues and consumes single-use password reset tokens.
// It doubles as the credential bootstrap for newly activated accounts, which
// sign up with a placeholder password.
type PasswordResetService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	frontendURL string
	expiry      time.Duration
	now         func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(db *gorm.DB, opts ...PasswordResetOption) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}

	service := &PasswordResetService{
		db:     db,
		expiry: defaultResetExpiry,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateToken issues a reset token for the given user id.
func (s *PasswordResetService) CreateToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("password reset service: user id is required")
	}

	token, err := crypto.GenerateToken(defaultResetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("password reset service: generate token: %w", err)
	}

	record := models.PasswordResetToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: s.now().Add(s.expiry),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("password reset service: create token: %w", err)
	}

	return token, nil
}

// ForgotPassword issues a reset token for the account behind the email and
// dispatches the reset link. An unknown email returns success without side
// effects so the endpoint does not leak which addresses are registered.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("password reset service: email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("password reset service: find user: %w", err)
	}

	token, err := s.CreateToken(ctx, user.ID)
	if err != nil {
		return err
	}

	s.sendResetEmail(ctx, &user, token)
	return nil
}

// ResetPassword consumes a token and replaces the account credential.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}
	if len(newPassword) < 8 {
		return errors.New("password reset service: password must be at least 8 characters")
	}

	var record models.PasswordResetToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("password reset service: find token: %w", err)
	}

	now := s.now()
	if record.UsedAt != nil {
		return ErrTokenInvalid
	}
	if record.ExpiresAt.Before(now) {
		return ErrTokenExpired
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("password reset service: hash password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("id = ?", record.UserID).
			Update("password", hash).Error; err != nil {
			return fmt.Errorf("password reset service: update password: %w", err)
		}
		if err := tx.Model(&record).Update("used_at", now).Error; err != nil {
			return fmt.Errorf("password reset service: mark used: %w", err)
		}
		return nil
	})
}

// PurgeExpired deletes reset tokens past their expiry. Used tokens older than
// the cutoff are removed as well.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", s.now()).
		Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("password reset service: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PasswordResetService) sendResetEmail(ctx context.Context, user *models.User, token string) {
	if s.mailer == nil {
		return
	}

	link := token
	if s.frontendURL != "" {
		link = fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	}

	msg := mail.Message{
		To:      []string{user.Email},
		Subject: "Reset your ProServe password",
		Body: fmt.Sprintf("Hello %s,\n\nUse the link below to reset your password. It expires in one hour.\n%s\n",
			user.Name, link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		logger.Warn("reset email failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
