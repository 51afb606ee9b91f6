package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/internal/services"
)

const testSignature = "t=123,v1=valid"

// stubGateway accepts exactly one signature value and replays canned sessions.
type stubGateway struct {
	sessions map[string]*payments.Session
	details  map[string]*payments.PaymentDetail
	event    *payments.WebhookEvent
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		sessions: make(map[string]*payments.Session),
		details:  make(map[string]*payments.PaymentDetail),
	}
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, input payments.CreateSessionInput) (*payments.Session, error) {
	session := &payments.Session{
		ID:       "cs_" + uuid.NewString()[:8],
		URL:      "https://checkout.example.com/pay",
		Metadata: input.Metadata,
	}
	g.sessions[session.ID] = session
	return session, nil
}

func (g *stubGateway) GetCheckoutSession(_ context.Context, sessionID string) (*payments.Session, error) {
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	return session, nil
}

func (g *stubGateway) GetPaymentDetail(_ context.Context, paymentIntentID string) (*payments.PaymentDetail, error) {
	detail, ok := g.details[paymentIntentID]
	if !ok {
		return nil, errors.New("stub gateway: no detail")
	}
	return detail, nil
}

func (g *stubGateway) VerifyWebhook(_ []byte, signature string) (*payments.WebhookEvent, error) {
	if signature != testSignature {
		return nil, payments.ErrInvalidSignature
	}
	if g.event == nil {
		return nil, errors.New("stub gateway: no event configured")
	}
	return g.event, nil
}

func openHandlersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Plan{},
		&models.Company{},
		&models.PlanAssignment{},
		&models.PasswordResetToken{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func newPaymentsRouter(t *testing.T, db *gorm.DB, gateway payments.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	activation, err := services.NewActivationService(db, gateway)
	require.NoError(t, err)
	checkout, err := services.NewCheckoutService(db, gateway,
		services.WithCheckoutFrontendURL("https://app.example.com"))
	require.NoError(t, err)

	handler := NewPaymentsHandler(checkout, activation, gateway)

	r := gin.New()
	r.POST("/api/payments/checkout", handler.Checkout)
	r.POST("/api/payments/webhook", handler.Webhook)
	r.GET("/api/payments/checkout/finalize", handler.Finalize)
	return r
}

func seedHandlersSignup(t *testing.T, db *gorm.DB) (*models.User, *models.Company, *models.Plan) {
	t.Helper()

	user := &models.User{
		Name:     "Ada",
		Email:    uuid.NewString() + "@example.com",
		Password: "placeholder",
		Status:   models.UserStatusInActive,
	}
	require.NoError(t, db.Create(user).Error)

	plan := &models.Plan{PlanName: "Pro " + uuid.NewString()[:8], Duration: models.PlanDurationMonthly, Rate: 99}
	require.NoError(t, db.Create(plan).Error)

	company := &models.Company{UserID: &user.ID, PlanID: &plan.ID, CompanyName: "Acme Field Services"}
	require.NoError(t, db.Create(company).Error)

	return user, company, plan
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := openHandlersTestDB(t)
	r := newPaymentsRouter(t, db, newStubGateway())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=garbage")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "AUTHENTICATION_FAILED")

	var count int64
	require.NoError(t, db.Model(&models.PlanAssignment{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestWebhookActivatesOnCheckoutCompleted(t *testing.T) {
	db := openHandlersTestDB(t)
	user, company, plan := seedHandlersSignup(t, db)

	gateway := newStubGateway()
	session := &payments.Session{
		ID:              "cs_evt",
		PaymentIntentID: "pi_evt",
		Metadata: map[string]string{
			payments.MetadataUserID:    user.ID,
			payments.MetadataCompanyID: company.ID,
			payments.MetadataPlanID:    plan.ID,
		},
	}
	gateway.sessions[session.ID] = session
	gateway.details["pi_evt"] = &payments.PaymentDetail{PaymentIntentID: "pi_evt", CardLast4: strptr("4242")}
	gateway.event = &payments.WebhookEvent{ID: "evt_1", Type: payments.EventCheckoutCompleted, Session: session}

	r := newPaymentsRouter(t, db, gateway)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", testSignature)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "received")

	var assignment models.PlanAssignment
	require.NoError(t, db.First(&assignment, "company_id = ?", company.ID).Error)
	require.True(t, assignment.IsActive)
	require.NotNil(t, assignment.CardLast4)

	// Redelivery of the same event is acknowledged without duplicating.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", testSignature)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.PlanAssignment{}).
		Where("company_id = ?", company.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestFinalizeActivatesAndReportsDuplicate(t *testing.T) {
	db := openHandlersTestDB(t)
	user, company, plan := seedHandlersSignup(t, db)

	gateway := newStubGateway()
	gateway.sessions["cs_fin"] = &payments.Session{
		ID: "cs_fin",
		Metadata: map[string]string{
			payments.MetadataUserID:    user.ID,
			payments.MetadataCompanyID: company.ID,
			payments.MetadataPlanID:    plan.ID,
		},
	}

	r := newPaymentsRouter(t, db, gateway)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/checkout/finalize?session_id=cs_fin", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			AlreadyActive bool `json:"already_active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.False(t, envelope.Data.AlreadyActive)

	// Second poll for the same session reports duplicate.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/payments/checkout/finalize?session_id=cs_fin", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Data.AlreadyActive)
}

func TestFinalizeRequiresSessionID(t *testing.T) {
	db := openHandlersTestDB(t)
	r := newPaymentsRouter(t, db, newStubGateway())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/checkout/finalize", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFinalizeUnknownSession(t *testing.T) {
	db := openHandlersTestDB(t)
	r := newPaymentsRouter(t, db, newStubGateway())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/payments/checkout/finalize?session_id=cs_missing", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutEndpointValidatesPayload(t *testing.T) {
	db := openHandlersTestDB(t)
	r := newPaymentsRouter(t, db, newStubGateway())

	body, err := json.Marshal(gin.H{"email": "not-an-email"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/checkout", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutEndpointCreatesSession(t *testing.T) {
	db := openHandlersTestDB(t)

	plan := &models.Plan{PlanName: "Starter " + uuid.NewString()[:8], Duration: models.PlanDurationMonthly, Rate: 49}
	require.NoError(t, db.Create(plan).Error)

	r := newPaymentsRouter(t, db, newStubGateway())

	body, err := json.Marshal(gin.H{
		"name":         "Ada",
		"email":        "checkout-" + uuid.NewString()[:8] + "@example.com",
		"company_name": "Acme Field Services",
		"plan_id":      plan.ID,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/payments/checkout", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "checkout.example.com")
}

func strptr(s string) *string { return &s }
