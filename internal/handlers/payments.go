package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/internal/services"
	appErrors "github.com/proserveapp/proserve/pkg/errors"
	"github.com/proserveapp/proserve/pkg/logger"
	"github.com/proserveapp/proserve/pkg/metrics"
	"github.com/proserveapp/proserve/pkg/response"
)

// PaymentsHandler exposes the checkout entry point and both activation paths:
// the gateway webhook and the post-redirect polling fallback.
type PaymentsHandler struct {
	checkout   *services.CheckoutService
	activation *services.ActivationService
	gateway    payments.Gateway
}

func NewPaymentsHandler(checkout *services.CheckoutService, activation *services.ActivationService, gateway payments.Gateway) *PaymentsHandler {
	return &PaymentsHandler{checkout: checkout, activation: activation, gateway: gateway}
}

type checkoutRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	LastName     string `json:"last_name" validate:"max=100"`
	Email        string `json:"email" validate:"required,email"`
	MobileNumber string `json:"mobile_number" validate:"max=32"`

	CompanyName         string `json:"company_name" validate:"required,max=200"`
	Industry            string `json:"industry" validate:"max=100"`
	CompanyEmail        string `json:"company_email" validate:"omitempty,email"`
	CompanyMobileNumber string `json:"company_mobile_number" validate:"max=32"`
	Address             string `json:"address" validate:"max=300"`
	City                string `json:"city" validate:"max=100"`
	State               string `json:"state" validate:"max=100"`

	PlanID string `json:"plan_id" validate:"required"`
}

// POST /api/payments/checkout
func (h *PaymentsHandler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.checkout.StartCheckout(requestContext(c), services.SignupCheckoutInput{
		Name:                req.Name,
		LastName:            req.LastName,
		Email:               req.Email,
		MobileNumber:        req.MobileNumber,
		CompanyName:         req.CompanyName,
		Industry:            req.Industry,
		CompanyEmail:        req.CompanyEmail,
		CompanyMobileNumber: req.CompanyMobileNumber,
		Address:             req.Address,
		City:                req.City,
		State:               req.State,
		PlanID:              req.PlanID,
	})
	if err != nil {
		metrics.CheckoutSessions.WithLabelValues("error").Inc()
		response.Error(c, serviceError(err))
		return
	}

	metrics.CheckoutSessions.WithLabelValues("created").Inc()
	response.Success(c, http.StatusCreated, result)
}

// POST /api/payments/webhook
//
// The raw body is required for signature verification, so this route must not
// sit behind any body-parsing middleware. Responses follow the gateway's
// redelivery contract: 400 tells it the payload is bad, non-2xx makes it retry.
func (h *PaymentsHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "read_error").Inc()
		response.Error(c, appErrors.NewBadRequest("unable to read request body"))
		return
	}

	event, err := h.gateway.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		response.Error(c, appErrors.ErrAuthenticationFailed.WithInternal(err))
		return
	}

	result, err := h.activation.ProcessWebhookEvent(requestContext(c), event)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		metrics.Activations.WithLabelValues("webhook", "error").Inc()
		logger.WithModule("payments").Error("webhook activation failed",
			zap.String("event_id", event.ID),
			zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	if result != nil {
		if result.AlreadyActive {
			metrics.Activations.WithLabelValues("webhook", "duplicate").Inc()
		} else {
			metrics.Activations.WithLabelValues("webhook", "created").Inc()
		}
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, "ok").Inc()
	response.Success(c, http.StatusOK, gin.H{"received": true})
}

// GET /api/payments/checkout/finalize?session_id=...
//
// Called by the frontend after the browser returns from the gateway. Safe to
// call whether or not the webhook already arrived.
func (h *PaymentsHandler) Finalize(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, appErrors.NewBadRequest("session_id is required"))
		return
	}

	result, err := h.activation.FinalizeBySessionID(requestContext(c), sessionID)
	if err != nil {
		metrics.Activations.WithLabelValues("finalize", "error").Inc()
		response.Error(c, serviceError(err))
		return
	}

	if result.AlreadyActive {
		metrics.Activations.WithLabelValues("finalize", "duplicate").Inc()
	} else {
		metrics.Activations.WithLabelValues("finalize", "created").Inc()
	}

	response.Success(c, http.StatusOK, gin.H{
		"already_active": result.AlreadyActive,
		"assignment":     result.Assignment,
	})
}
