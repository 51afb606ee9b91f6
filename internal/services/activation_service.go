package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proserveapp/proserve/internal/billing"
	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/pkg/logger"
	"github.com/proserveapp/proserve/pkg/mail"
)

const invoiceShortFallback = "CMP"

// defaultGatewayTimeout bounds gateway fetches on the polling path so a slow
// gateway cannot pin the finalize request; the client may simply re-poll.
const defaultGatewayTimeout = 15 * time.Second

// ActivationInput identifies the entities to activate. Identifiers come from
// verified checkout session metadata or an accepted invitation, never from
// request bodies.
type ActivationInput struct {
	UserID    string
	CompanyID string
	PlanID    string

	// Detail carries charge metadata when the trigger was a paid checkout.
	// Nil for invitation-driven activations.
	Detail *payments.PaymentDetail

	// CreatedBy records the actor written to the billing row.
	CreatedBy string
}

// ActivationResult reports the outcome of an activation attempt.
type ActivationResult struct {
	// AlreadyActive is true when a previous attempt already activated the
	// company; the call was a no-op.
	AlreadyActive bool

	UserID     string
	CompanyID  string
	Assignment *models.PlanAssignment
}

// ActivationOption customises ActivationService behaviour.
type ActivationOption func(*ActivationService)

// WithActivationClock injects a custom clock primarily for testing.
func WithActivationClock(clock func() time.Time) ActivationOption {
	return func(s *ActivationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithActivationMailer wires the outbound mailer used for onboarding emails.
func WithActivationMailer(mailer mail.Mailer) ActivationOption {
	return func(s *ActivationService) {
		s.mailer = mailer
	}
}

// WithActivationResetTokens wires the reset-token issuer used to build the
// password setup link in the onboarding email.
func WithActivationResetTokens(resetTokens *PasswordResetService) ActivationOption {
	return func(s *ActivationService) {
		s.resetTokens = resetTokens
	}
}

// WithActivationFrontendURL sets the base URL embedded in onboarding emails.
func WithActivationFrontendURL(url string) ActivationOption {
	return func(s *ActivationService) {
		s.frontendURL = strings.TrimRight(url, "/")
	}
}

// WithActivationGatewayTimeout overrides the deadline applied to gateway
// calls on the polling path.
func WithActivationGatewayTimeout(d time.Duration) ActivationOption {
	return func(s *ActivationService) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// ActivationService turns completion signals into exactly one activation per
// company: account enabled, tenant enabled, and a numbered billing record.
//
// Webhook delivery and the redirect-driven poll race each other for the same
// checkout session; both funnel into Activate, which serialises on the company
// row so the loser observes the winner's work and returns AlreadyActive.
type ActivationService struct {
	db             *gorm.DB
	gateway        payments.Gateway
	mailer         mail.Mailer
	resetTokens    *PasswordResetService
	frontendURL    string
	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewActivationService constructs an ActivationService.
func NewActivationService(db *gorm.DB, gateway payments.Gateway, opts ...ActivationOption) (*ActivationService, error) {
	if db == nil {
		return nil, errors.New("activation service: db is required")
	}

	service := &ActivationService{
		db:             db,
		gateway:        gateway,
		gatewayTimeout: defaultGatewayTimeout,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// ProcessWebhookEvent reacts to a verified gateway event. Events other than
// checkout completion are acknowledged without side effects.
func (s *ActivationService) ProcessWebhookEvent(ctx context.Context, event *payments.WebhookEvent) (*ActivationResult, error) {
	if event == nil {
		return nil, errors.New("activation service: event is required")
	}
	if event.Type != payments.EventCheckoutCompleted || event.Session == nil {
		return nil, nil
	}
	return s.activateFromSession(ctx, event.Session)
}

// FinalizeBySessionID is the polling fallback: the browser lands on the
// success URL and the frontend hands us the session id to re-fetch and
// activate. Safe to call whether or not the webhook already won.
func (s *ActivationService) FinalizeBySessionID(ctx context.Context, sessionID string) (*ActivationResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("activation service: session id is required")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	session, err := s.gateway.GetCheckoutSession(fetchCtx, sessionID)
	if err != nil {
		return nil, err
	}

	return s.activateFromSession(ctx, session)
}

func (s *ActivationService) activateFromSession(ctx context.Context, session *payments.Session) (*ActivationResult, error) {
	userID := session.Metadata[payments.MetadataUserID]
	companyID := session.Metadata[payments.MetadataCompanyID]
	planID := session.Metadata[payments.MetadataPlanID]
	if userID == "" || companyID == "" || planID == "" {
		return nil, fmt.Errorf("activation service: session %s missing entity metadata", session.ID)
	}

	input := ActivationInput{
		UserID:    userID,
		CompanyID: companyID,
		PlanID:    planID,
		CreatedBy: userID,
	}

	// Charge enrichment is best effort: the billing row is written with
	// whatever detail we could fetch.
	if session.PaymentIntentID != "" {
		detailCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		detail, err := s.gateway.GetPaymentDetail(detailCtx, session.PaymentIntentID)
		cancel()
		if err != nil {
			logger.Warn("payment detail enrichment failed",
				zap.String("session_id", session.ID),
				zap.String("payment_intent_id", session.PaymentIntentID),
				zap.Error(err))
		} else {
			input.Detail = detail
		}
	}

	return s.Activate(ctx, input)
}

// Activate performs the activation transaction. It locks the company row so
// concurrent attempts for the same company serialise; the first writer
// activates, later writers observe the active assignment and no-op.
//
// An unknown plan id still activates the account and the company before
// failing with ErrPlanNotFound. No billing record is written in that case; a
// retry with a fixed catalog completes the remainder.
func (s *ActivationService) Activate(ctx context.Context, input ActivationInput) (*ActivationResult, error) {
	if input.UserID == "" || input.CompanyID == "" || input.PlanID == "" {
		return nil, errors.New("activation service: user, company and plan ids are required")
	}

	result := &ActivationResult{UserID: input.UserID, CompanyID: input.CompanyID}

	var (
		planMissing bool
		userEmail   string
		userName    string
		newlyActive bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var company models.Company
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&company, "id = ?", input.CompanyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCompanyNotFound
			}
			return fmt.Errorf("activation service: lock company: %w", err)
		}

		var existing models.PlanAssignment
		err := tx.
			Where("company_id = ? AND is_active = ?", company.ID, true).
			First(&existing).Error
		if err == nil {
			result.AlreadyActive = true
			result.Assignment = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("activation service: check active assignment: %w", err)
		}

		var user models.User
		if err := tx.First(&user, "id = ?", input.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("activation service: load user: %w", err)
		}
		userEmail = user.Email
		userName = user.Name

		if err := tx.Model(&user).Update("status", models.UserStatusActive).Error; err != nil {
			return fmt.Errorf("activation service: activate user: %w", err)
		}
		if err := tx.Model(&company).Update("is_active", true).Error; err != nil {
			return fmt.Errorf("activation service: activate company: %w", err)
		}

		var plan models.Plan
		if err := tx.First(&plan, "id = ?", input.PlanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Deliberate: the account and tenant stay enabled so a
				// retry after a catalog fix only has to write billing.
				planMissing = true
				return nil
			}
			return fmt.Errorf("activation service: load plan: %w", err)
		}

		now := s.now()
		invoiceNumber, err := s.nextInvoiceNumber(tx, &company, now)
		if err != nil {
			return err
		}

		start, end := billing.Period(plan.Duration, now)
		assignment := models.PlanAssignment{
			CompanyID:     company.ID,
			UserID:        user.ID,
			PlanID:        plan.ID,
			StartDate:     start,
			EndDate:       end,
			IsActive:      true,
			InvoiceNumber: invoiceNumber,
			CreatedBy:     input.CreatedBy,
		}
		if detail := input.Detail; detail != nil {
			assignment.AmountCents = detail.AmountCents
			assignment.Currency = detail.Currency
			assignment.PaymentIntentID = strOrNil(detail.PaymentIntentID)
			assignment.ChargeID = detail.ChargeID
			assignment.CardBrand = detail.CardBrand
			assignment.CardLast4 = detail.CardLast4
			assignment.CardExpMonth = detail.CardExpMonth
			assignment.CardExpYear = detail.CardExpYear
			assignment.ReceiptURL = detail.ReceiptURL
		}

		if err := tx.Create(&assignment).Error; err != nil {
			return fmt.Errorf("activation service: create assignment: %w", err)
		}
		if err := tx.Model(&company).Update("plan_id", plan.ID).Error; err != nil {
			return fmt.Errorf("activation service: set company plan: %w", err)
		}

		result.Assignment = &assignment
		newlyActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if planMissing {
		return nil, ErrPlanNotFound
	}

	if newlyActive {
		s.sendOnboardingEmails(ctx, input.UserID, userEmail, userName)
	}

	return result, nil
}

// nextInvoiceNumber builds INV-<SHORT>-<YEAR>-<SEQ> inside the activation
// transaction, so the year-scoped sequence is issued under the company lock.
func (s *ActivationService) nextInvoiceNumber(tx *gorm.DB, company *models.Company, now time.Time) (string, error) {
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())

	var count int64
	if err := tx.Model(&models.PlanAssignment{}).
		Where("company_id = ? AND created_at >= ?", company.ID, yearStart).
		Count(&count).Error; err != nil {
		return "", fmt.Errorf("activation service: count assignments: %w", err)
	}

	return fmt.Sprintf("INV-%s-%d-%03d", companyShort(company.CompanyName), now.Year(), count+1), nil
}

// companyShort derives the invoice mnemonic from the company name. Non-letter
// runes act as separators, so punctuation and digits split words ("O'Brien"
// contributes OB, not O). The first letter of each resulting token is
// uppercased, at most four. Names with no letters at all fall back to a fixed
// marker.
func companyShort(name string) string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return ' '
	}, name)

	var initials []rune
	for _, word := range strings.Fields(normalized) {
		for _, r := range word {
			initials = append(initials, unicode.ToUpper(r))
			break
		}
		if len(initials) == 4 {
			break
		}
	}
	if len(initials) == 0 {
		return invoiceShortFallback
	}
	return string(initials)
}

// sendOnboardingEmails dispatches the password setup and welcome emails.
// Failures are logged and swallowed: activation already committed.
func (s *ActivationService) sendOnboardingEmails(ctx context.Context, userID, email, name string) {
	if s.mailer == nil || email == "" {
		return
	}

	if s.resetTokens != nil {
		token, err := s.resetTokens.CreateToken(ctx, userID)
		if err != nil {
			logger.Warn("onboarding reset token failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			msg := mail.Message{
				To:      []string{email},
				Subject: "Set your ProServe password",
				Body: fmt.Sprintf("Hello %s,\n\nYour subscription is active. Set your password here:\n%s\n",
					name, s.resetLink(token)),
			}
			if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
				logger.Warn("password setup email failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	welcome := mail.Message{
		To:      []string{email},
		Subject: "Welcome to ProServe",
		Body: fmt.Sprintf("Hello %s,\n\nYour company workspace is ready. Sign in to get started.\n",
			name),
	}
	if err := s.mailer.Send(ctx, welcome); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		logger.Warn("welcome email failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *ActivationService) resetLink(token string) string {
	if s.frontendURL == "" {
		return token
	}
	return fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
}

func strOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
