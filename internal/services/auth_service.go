package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/auth"
	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/pkg/crypto"
)

// LoginResult pairs the issued access token with the authenticated user.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthService authenticates accounts. Only Active accounts may sign in;
// invited and inactive accounts are rejected regardless of credentials.
type AuthService struct {
	db  *gorm.DB
	jwt *auth.JWTService
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, jwt *auth.JWTService) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	return &AuthService{db: db, jwt: jwt}, nil
}

// Login verifies the credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, ErrAccountNotActive
	}

	input := auth.AccessTokenInput{UserID: user.ID}
	if user.Role != nil {
		input.Role = user.Role.Name
	}

	var company models.Company
	if err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&company).Error; err == nil {
		input.CompanyID = company.ID
	}

	token, err := s.jwt.GenerateAccessToken(input)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	return &LoginResult{Token: token, User: &user}, nil
}

// GetUser loads the account behind an authenticated request.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}
	return &user, nil
}
