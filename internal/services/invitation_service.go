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
	defaultInvitationExpiry     = 72 * time.Hour
	defaultInvitationTokenBytes = 32
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInvitationExpiry overrides the invitation token lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationMailer wires the outbound mailer for invitation emails.
func WithInvitationMailer(mailer mail.Mailer) InvitationOption {
	return func(s *InvitationService) {
		s.mailer = mailer
	}
}

// WithInvitationFrontendURL sets the base URL embedded in invitation links.
func WithInvitationFrontendURL(url string) InvitationOption {
	return func(s *InvitationService) {
		s.frontendURL = strings.TrimRight(url, "/")
	}
}

// InvitationService manages the invitation arm of onboarding. Accepting an
// invitation runs the same activation procedure as a confirmed payment, so an
// invited owner joining an already-paid company never duplicates billing.
type InvitationService struct {
	db          *gorm.DB
	activation  *ActivationService
	mailer      mail.Mailer
	frontendURL string
	expiry      time.Duration
	now         func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, activation *ActivationService, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:         db,
		activation: activation,
		expiry:     defaultInvitationExpiry,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Invite creates an invited account carrying a single-use token and emails
// the invitation link. The account cannot authenticate until accepted.
func (s *InvitationService) Invite(ctx context.Context, email, name, invitedBy string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("invitation service: email is required")
	}

	token, err := crypto.GenerateToken(defaultInvitationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	placeholder, err := crypto.HashPassword(token)
	if err != nil {
		return nil, fmt.Errorf("invitation service: placeholder credential: %w", err)
	}

	expiresAt := s.now().Add(s.expiry)
	user := models.User{
		Name:                name,
		Email:               email,
		Password:            placeholder,
		Status:              models.UserStatusInvited,
		InvitationToken:     &token,
		InvitationExpiresAt: &expiresAt,
		CreatedBy:           invitedBy,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("invitation service: create user: %w", err)
	}

	s.sendInvitationEmail(ctx, &user, token)
	return &user, nil
}

// Accept redeems an invitation token: the account becomes Active, the token
// is cleared, and the owned company (if any, with a chosen plan) goes through
// activation. The activation idempotency check makes accepting into an
// already-active company a no-op on billing.
func (s *InvitationService) Accept(ctx context.Context, token string) (*models.User, error) {
	user, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.clearToken(ctx, user, models.UserStatusActive); err != nil {
		return nil, err
	}

	if s.activation != nil {
		s.activateOwnedCompany(ctx, user)
	}

	user.Status = models.UserStatusActive
	return user, nil
}

// Reject invalidates the token and marks the account InActive. No company or
// billing state is touched.
func (s *InvitationService) Reject(ctx context.Context, token string) (*models.User, error) {
	user, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.clearToken(ctx, user, models.UserStatusInActive); err != nil {
		return nil, err
	}

	user.Status = models.UserStatusInActive
	return user, nil
}

func (s *InvitationService) resolveToken(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	var user models.User
	if err := s.db.WithContext(ctx).
		Where("invitation_token = ?", token).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("invitation service: find by token: %w", err)
	}

	if user.InvitationExpiresAt != nil && user.InvitationExpiresAt.Before(s.now()) {
		return nil, ErrTokenExpired
	}

	return &user, nil
}

func (s *InvitationService) clearToken(ctx context.Context, user *models.User, status models.UserStatus) error {
	err := s.db.WithContext(ctx).
		Model(user).
		Updates(map[string]any{
			"status":                status,
			"invitation_token":      nil,
			"invitation_expires_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("invitation service: consume token: %w", err)
	}

	user.InvitationToken = nil
	user.InvitationExpiresAt = nil
	return nil
}

// activateOwnedCompany runs the activation procedure for the company the
// accepting user owns. Missing company or unset plan just means there is
// nothing to activate yet; a failed activation is logged but does not undo
// the accepted invitation.
func (s *InvitationService) activateOwnedCompany(ctx context.Context, user *models.User) {
	var company models.Company
	err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		First(&company).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("invitation company lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		return
	}
	if company.PlanID == nil || *company.PlanID == "" {
		return
	}

	_, err = s.activation.Activate(ctx, ActivationInput{
		UserID:    user.ID,
		CompanyID: company.ID,
		PlanID:    *company.PlanID,
		CreatedBy: user.ID,
	})
	if err != nil {
		logger.Warn("invitation-driven activation failed",
			zap.String("user_id", user.ID),
			zap.String("company_id", company.ID),
			zap.Error(err))
	}
}

// PurgeExpired clears invitation tokens past their expiry so stale links
// stop resolving. The accounts stay Invited until re-invited or removed.
func (s *InvitationService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("invitation_token IS NOT NULL AND invitation_expires_at < ?", s.now()).
		Updates(map[string]any{
			"invitation_token":      nil,
			"invitation_expires_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("invitation service: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *InvitationService) sendInvitationEmail(ctx context.Context, user *models.User, token string) {
	if s.mailer == nil {
		return
	}

	link := token
	if s.frontendURL != "" {
		link = fmt.Sprintf("%s/invitations/accept?token=%s", s.frontendURL, token)
	}

	msg := mail.Message{
		To:      []string{user.Email},
		Subject: "You're invited to ProServe",
		Body: fmt.Sprintf("Hello %s,\n\nYou have been invited to join ProServe. Accept your invitation here:\n%s\n\nIf you did not expect this email, you can ignore it.\n",
			user.Name, link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		logger.Warn("invitation email failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
