package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/pkg/crypto"
)

// SignupCheckoutInput is the self-service signup payload: administrator
// details, company details, and the chosen plan.
type SignupCheckoutInput struct {
	Name         string
	LastName     string
	Email        string
	MobileNumber string

	CompanyName         string
	Industry            string
	CompanyEmail        string
	CompanyMobileNumber string
	Address             string
	City                string
	State               string

	PlanID string
}

// CheckoutResult carries the hosted payment session the browser redirects to.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
}

// CheckoutOption customises CheckoutService behaviour.
type CheckoutOption func(*CheckoutService)

// WithCheckoutFrontendURL sets the base for success/cancel redirect URLs.
func WithCheckoutFrontendURL(url string) CheckoutOption {
	return func(s *CheckoutService) {
		s.frontendURL = strings.TrimRight(url, "/")
	}
}

// CheckoutService handles self-service signup: it provisions the inactive
// account and company, then opens a hosted payment session whose metadata
// carries the entity ids the activation paths will trust later.
type CheckoutService struct {
	db          *gorm.DB
	gateway     payments.Gateway
	frontendURL string
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(db *gorm.DB, gateway payments.Gateway, opts ...CheckoutOption) (*CheckoutService, error) {
	if db == nil {
		return nil, errors.New("checkout service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("checkout service: gateway is required")
	}

	service := &CheckoutService{db: db, gateway: gateway}
	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// StartCheckout provisions the account and company in an unpaid state and
// returns the gateway session to redirect the browser to. Neither record is
// active until a completion signal arrives.
func (s *CheckoutService) StartCheckout(ctx context.Context, input SignupCheckoutInput) (*CheckoutResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, errors.New("checkout service: email is required")
	}
	if strings.TrimSpace(input.CompanyName) == "" {
		return nil, errors.New("checkout service: company name is required")
	}

	var plan models.Plan
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", input.PlanID, true).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("checkout service: load plan: %w", err)
	}

	// The account starts with a random placeholder credential; the real
	// password is set through the reset flow after activation.
	placeholder, err := crypto.GenerateToken(24)
	if err != nil {
		return nil, fmt.Errorf("checkout service: placeholder: %w", err)
	}
	hash, err := crypto.HashPassword(placeholder)
	if err != nil {
		return nil, fmt.Errorf("checkout service: hash placeholder: %w", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(input.Name),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		Password:     hash,
		MobileNumber: strings.TrimSpace(input.MobileNumber),
		Status:       models.UserStatusInActive,
		CreatedBy:    "signup",
	}
	company := models.Company{
		PlanID:              &plan.ID,
		CompanyName:         strings.TrimSpace(input.CompanyName),
		Industry:            strings.TrimSpace(input.Industry),
		CompanyEmail:        strings.TrimSpace(input.CompanyEmail),
		CompanyMobileNumber: strings.TrimSpace(input.CompanyMobileNumber),
		Address:             strings.TrimSpace(input.Address),
		City:                strings.TrimSpace(input.City),
		State:               strings.TrimSpace(input.State),
		IsActive:            false,
		CreatedBy:           "signup",
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("checkout service: create user: %w", err)
		}

		if role, err := findRole(tx, models.RoleCompany); err == nil {
			if err := tx.Model(&user).Update("role_id", role.ID).Error; err != nil {
				return fmt.Errorf("checkout service: assign role: %w", err)
			}
		}

		company.UserID = &user.ID
		company.CreatedBy = user.ID
		if err := tx.Create(&company).Error; err != nil {
			return fmt.Errorf("checkout service: create company: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CreateSessionInput{
		PlanName:    plan.PlanName,
		AmountCents: int64(math.Round(plan.Rate * 100)),
		Currency:    "usd",
		Metadata: map[string]string{
			payments.MetadataUserID:    user.ID,
			payments.MetadataCompanyID: company.ID,
			payments.MetadataPlanID:    plan.ID,
		},
		SuccessURL: s.successURL(),
		CancelURL:  s.cancelURL(),
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		SessionID: session.ID,
		URL:       session.URL,
		UserID:    user.ID,
		CompanyID: company.ID,
	}, nil
}

func (s *CheckoutService) successURL() string {
	return fmt.Sprintf("%s/payment/success?session_id={CHECKOUT_SESSION_ID}", s.frontendURL)
}

func (s *CheckoutService) cancelURL() string {
	return fmt.Sprintf("%s/payment/cancel", s.frontendURL)
}

func findRole(tx *gorm.DB, name string) (*models.Role, error) {
	var role models.Role
	if err := tx.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}
