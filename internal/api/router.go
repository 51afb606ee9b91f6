package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/app"
	iauth "github.com/proserveapp/proserve/internal/auth"
	"github.com/proserveapp/proserve/internal/handlers"
	"github.com/proserveapp/proserve/internal/middleware"
	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/internal/services"
	"github.com/proserveapp/proserve/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers core routes.
func NewRouter(db *gorm.DB, gateway payments.Gateway, jwt *iauth.JWTService, mailer mail.Mailer, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	frontendURL := cfg.URLs.Frontend

	resetTokens, err := services.NewPasswordResetService(db,
		services.WithResetMailer(mailer),
		services.WithResetFrontendURL(frontendURL),
	)
	if err != nil {
		return nil, err
	}

	activation, err := services.NewActivationService(db, gateway,
		services.WithActivationMailer(mailer),
		services.WithActivationResetTokens(resetTokens),
		services.WithActivationFrontendURL(frontendURL),
	)
	if err != nil {
		return nil, err
	}

	invitations, err := services.NewInvitationService(db, activation,
		services.WithInvitationMailer(mailer),
		services.WithInvitationFrontendURL(frontendURL),
	)
	if err != nil {
		return nil, err
	}

	checkout, err := services.NewCheckoutService(db, gateway,
		services.WithCheckoutFrontendURL(frontendURL),
	)
	if err != nil {
		return nil, err
	}

	authSvc, err := services.NewAuthService(db, jwt)
	if err != nil {
		return nil, err
	}

	plans, err := services.NewPlanService(db)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	paymentsHandler := handlers.NewPaymentsHandler(checkout, activation, gateway)
	invitationsHandler := handlers.NewInvitationsHandler(invitations)
	plansHandler := handlers.NewPlansHandler(plans)
	authHandler := handlers.NewAuthHandler(authSvc, resetTokens)

	// Public payment routes. The webhook needs the raw body for signature
	// verification; both completion paths are unauthenticated because the
	// caller may not hold credentials yet.
	pay := r.Group("/api/payments")
	{
		pay.POST("/checkout", paymentsHandler.Checkout)
		pay.POST("/webhook", paymentsHandler.Webhook)
		pay.GET("/checkout/finalize", paymentsHandler.Finalize)
	}

	// Invitation completion routes (token is the credential)
	inv := r.Group("/api/invitations")
	{
		inv.GET("/accept", invitationsHandler.Accept)
		inv.GET("/reject", invitationsHandler.Reject)
	}

	// Public catalog and auth routes
	r.GET("/api/plans", plansHandler.List)
	r.GET("/api/plans/:id", plansHandler.Get)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	// Protected routes
	requireAuth := middleware.Auth(jwt)
	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.POST("/invitations", invitationsHandler.Invite)

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
