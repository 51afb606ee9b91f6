package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proserveapp/proserve/internal/middleware"
	"github.com/proserveapp/proserve/internal/services"
	appErrors "github.com/proserveapp/proserve/pkg/errors"
	"github.com/proserveapp/proserve/pkg/metrics"
	"github.com/proserveapp/proserve/pkg/response"
)

// AuthHandler manages authentication flows (login/forgot/reset/me).
type AuthHandler struct {
	auth        *services.AuthService
	resetTokens *services.PasswordResetService
}

func NewAuthHandler(auth *services.AuthService, resetTokens *services.PasswordResetService) *AuthHandler {
	return &AuthHandler{auth: auth, resetTokens: resetTokens}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, serviceError(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":        result.User.ID,
			"name":      result.User.Name,
			"last_name": result.User.LastName,
			"email":     result.User.Email,
			"status":    result.User.Status,
		},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/forgot-password
//
// Always responds 200 so callers cannot probe which emails exist.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resetTokens.ForgotPassword(requestContext(c), req.Email); err != nil {
		response.Error(c, serviceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resetTokens.ResetPassword(requestContext(c), req.Token, req.Password); err != nil {
		response.Error(c, serviceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.auth.GetUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}

	response.Success(c, http.StatusOK, user)
}
