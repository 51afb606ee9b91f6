package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/internal/payments"
	"github.com/proserveapp/proserve/pkg/mail"
)

func TestActivateTransitionsAllThreeEntities(t *testing.T) {
	db := openServicesTestDB(t)
	current := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	svc, err := NewActivationService(db, nil, WithActivationClock(func() time.Time { return current }))
	require.NoError(t, err)

	detail := &payments.PaymentDetail{
		PaymentIntentID: "pi_123",
		AmountCents:     int64ref(9900),
		Currency:        strref("USD"),
		ChargeID:        strref("ch_123"),
		CardBrand:       strref("visa"),
		CardLast4:       strref("4242"),
	}

	result, err := svc.Activate(context.Background(), ActivationInput{
		UserID:    user.ID,
		CompanyID: company.ID,
		PlanID:    plan.ID,
		Detail:    detail,
		CreatedBy: user.ID,
	})
	require.NoError(t, err)
	require.False(t, result.AlreadyActive)
	require.NotNil(t, result.Assignment)

	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	require.Equal(t, models.UserStatusActive, gotUser.Status)

	var gotCompany models.Company
	require.NoError(t, db.First(&gotCompany, "id = ?", company.ID).Error)
	require.True(t, gotCompany.IsActive)
	require.NotNil(t, gotCompany.PlanID)
	require.Equal(t, plan.ID, *gotCompany.PlanID)

	assignment := result.Assignment
	require.Equal(t, "INV-AFS-2025-001", assignment.InvoiceNumber)
	require.True(t, assignment.IsActive)
	require.Equal(t, current, assignment.StartDate.UTC())
	require.NotNil(t, assignment.EndDate)
	require.Equal(t, time.Date(2025, time.April, 10, 9, 0, 0, 0, time.UTC), assignment.EndDate.UTC())
	require.NotNil(t, assignment.CardLast4)
	require.Equal(t, "4242", *assignment.CardLast4)
}

func TestActivateIsIdempotentAcrossBothEntryPaths(t *testing.T) {
	db := openServicesTestDB(t)
	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	gateway := newFakeGateway()
	session := &payments.Session{
		ID:              "cs_race",
		PaymentIntentID: "pi_race",
		Metadata: map[string]string{
			payments.MetadataUserID:    user.ID,
			payments.MetadataCompanyID: company.ID,
			payments.MetadataPlanID:    plan.ID,
		},
	}
	gateway.sessions[session.ID] = session
	gateway.details["pi_race"] = &payments.PaymentDetail{PaymentIntentID: "pi_race", AmountCents: int64ref(9900)}

	svc, err := NewActivationService(db, gateway)
	require.NoError(t, err)

	// Webhook arrives first.
	first, err := svc.ProcessWebhookEvent(context.Background(), &payments.WebhookEvent{
		ID:      "evt_1",
		Type:    payments.EventCheckoutCompleted,
		Session: session,
	})
	require.NoError(t, err)
	require.False(t, first.AlreadyActive)

	// The polling fallback lands on the same session afterwards.
	second, err := svc.FinalizeBySessionID(context.Background(), session.ID)
	require.NoError(t, err)
	require.True(t, second.AlreadyActive)
	require.Equal(t, first.Assignment.ID, second.Assignment.ID)
	require.Equal(t, first.Assignment.InvoiceNumber, second.Assignment.InvoiceNumber)

	var count int64
	require.NoError(t, db.Model(&models.PlanAssignment{}).
		Where("company_id = ?", company.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestActivateInvoiceSequenceIsPerCompanyPerYear(t *testing.T) {
	db := openServicesTestDB(t)
	current := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	svc, err := NewActivationService(db, nil, WithActivationClock(func() time.Time { return current }))
	require.NoError(t, err)

	first, err := svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "INV-AFS-2025-001", first.Assignment.InvoiceNumber)

	// A renewal supersedes the first assignment before the next activation.
	require.NoError(t, db.Model(&models.PlanAssignment{}).
		Where("id = ?", first.Assignment.ID).
		Update("is_active", false).Error)

	second, err := svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "INV-AFS-2025-002", second.Assignment.InvoiceNumber)
}

func TestCompanyShortTreatsNonLettersAsSeparators(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Acme Field Services", "AFS"},
		{"O'Brien", "OB"},
		{"O'Brien & Sons", "OBS"},
		{"A1 Plumbing", "AP"},
		{"alpha beta gamma delta epsilon", "ABGD"},
		{"123 456", "CMP"},
		{"", "CMP"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, companyShort(tc.name), "name %q", tc.name)
	}
}

func TestActivateShortCodeSplitsOnPunctuation(t *testing.T) {
	db := openServicesTestDB(t)
	current := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	user, company, plan := seedUnpaidSignup(t, db, "O'Brien & Sons")

	svc, err := NewActivationService(db, nil, WithActivationClock(func() time.Time { return current }))
	require.NoError(t, err)

	result, err := svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "INV-OBS-2025-001", result.Assignment.InvoiceNumber)
}

func TestActivateShortCodeFallsBackWhenNameHasNoLetters(t *testing.T) {
	db := openServicesTestDB(t)
	current := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	user, company, plan := seedUnpaidSignup(t, db, "123 456")

	svc, err := NewActivationService(db, nil, WithActivationClock(func() time.Time { return current }))
	require.NoError(t, err)

	result, err := svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "INV-CMP-2025-001", result.Assignment.InvoiceNumber)
}

func TestActivateUnknownPlanStillEnablesAccess(t *testing.T) {
	db := openServicesTestDB(t)
	user, company, _ := seedUnpaidSignup(t, db, "Acme Field Services")

	svc, err := NewActivationService(db, nil)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: uuid.NewString(),
	})
	require.ErrorIs(t, err, ErrPlanNotFound)

	// Access was enabled before billing failed and is not rolled back.
	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	require.Equal(t, models.UserStatusActive, gotUser.Status)

	var gotCompany models.Company
	require.NoError(t, db.First(&gotCompany, "id = ?", company.ID).Error)
	require.True(t, gotCompany.IsActive)

	var count int64
	require.NoError(t, db.Model(&models.PlanAssignment{}).
		Where("company_id = ?", company.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestActivateUnknownCompanyMutatesNothing(t *testing.T) {
	db := openServicesTestDB(t)
	user, _, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	svc, err := NewActivationService(db, nil)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: uuid.NewString(), PlanID: plan.ID,
	})
	require.ErrorIs(t, err, ErrCompanyNotFound)

	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	require.Equal(t, models.UserStatusInActive, gotUser.Status)
}

func TestProcessWebhookEventIgnoresUnrelatedEvents(t *testing.T) {
	db := openServicesTestDB(t)

	svc, err := NewActivationService(db, nil)
	require.NoError(t, err)

	result, err := svc.ProcessWebhookEvent(context.Background(), &payments.WebhookEvent{
		ID:   "evt_other",
		Type: "payment_intent.created",
	})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestFinalizeBySessionIDSurvivesEnrichmentFailure(t *testing.T) {
	db := openServicesTestDB(t)
	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	gateway := newFakeGateway()
	gateway.sessions["cs_noenrich"] = &payments.Session{
		ID:              "cs_noenrich",
		PaymentIntentID: "pi_missing",
		Metadata: map[string]string{
			payments.MetadataUserID:    user.ID,
			payments.MetadataCompanyID: company.ID,
			payments.MetadataPlanID:    plan.ID,
		},
	}
	gateway.detailErr = errors.New("boom")

	svc, err := NewActivationService(db, gateway)
	require.NoError(t, err)

	result, err := svc.FinalizeBySessionID(context.Background(), "cs_noenrich")
	require.NoError(t, err)
	require.NotNil(t, result.Assignment)
	require.Nil(t, result.Assignment.CardLast4)
	require.Nil(t, result.Assignment.AmountCents)
}

func TestFinalizeBySessionIDBoundsGatewayFetch(t *testing.T) {
	db := openServicesTestDB(t)
	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	gateway := newFakeGateway()
	gateway.sessions["cs_bounded"] = &payments.Session{
		ID: "cs_bounded",
		Metadata: map[string]string{
			payments.MetadataUserID:    user.ID,
			payments.MetadataCompanyID: company.ID,
			payments.MetadataPlanID:    plan.ID,
		},
	}

	svc, err := NewActivationService(db, gateway,
		WithActivationGatewayTimeout(5*time.Second),
	)
	require.NoError(t, err)

	before := time.Now()
	_, err = svc.FinalizeBySessionID(context.Background(), "cs_bounded")
	require.NoError(t, err)

	// The session fetch must carry a deadline even when the caller's context
	// has none.
	require.NotNil(t, gateway.sessionDeadline)
	require.WithinDuration(t, before.Add(5*time.Second), *gateway.sessionDeadline, time.Minute)
}

func TestActivateSendsOnboardingEmailsBestEffort(t *testing.T) {
	db := openServicesTestDB(t)
	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	mailer := &recordingMailer{}
	resetTokens, err := NewPasswordResetService(db)
	require.NoError(t, err)

	svc, err := NewActivationService(db, nil,
		WithActivationMailer(mailer),
		WithActivationResetTokens(resetTokens),
		WithActivationFrontendURL("https://app.example.com"),
	)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 2)

	var tokenCount int64
	require.NoError(t, db.Model(&models.PasswordResetToken{}).
		Where("user_id = ?", user.ID).Count(&tokenCount).Error)
	require.EqualValues(t, 1, tokenCount)
}

func TestActivateEmailFailureDoesNotRollBack(t *testing.T) {
	db := openServicesTestDB(t)
	user, company, plan := seedUnpaidSignup(t, db, "Acme Field Services")

	svc, err := NewActivationService(db, nil,
		WithActivationMailer(&failingMailer{}),
	)
	require.NoError(t, err)

	result, err := svc.Activate(context.Background(), ActivationInput{
		UserID: user.ID, CompanyID: company.ID, PlanID: plan.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Assignment)
}

func seedUnpaidSignup(t *testing.T, db *gorm.DB, companyName string) (*models.User, *models.Company, *models.Plan) {
	t.Helper()

	user := &models.User{
		Name:     "Ada",
		LastName: "Lovelace",
		Email:    uuid.NewString() + "@example.com",
		Password: "placeholder",
		Status:   models.UserStatusInActive,
	}
	require.NoError(t, db.Create(user).Error)

	plan := &models.Plan{
		PlanName: "Professional " + uuid.NewString()[:8],
		Duration: models.PlanDurationMonthly,
		Rate:     99,
	}
	require.NoError(t, db.Create(plan).Error)

	company := &models.Company{
		UserID:      &user.ID,
		PlanID:      &plan.ID,
		CompanyName: companyName,
		IsActive:    false,
	}
	require.NoError(t, db.Create(company).Error)

	return user, company, plan
}

func openServicesTestDB(t *testing.T) *gorm.DB {
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

type fakeGateway struct {
	sessions  map[string]*payments.Session
	details   map[string]*payments.PaymentDetail
	created   []payments.CreateSessionInput
	createErr error
	detailErr error

	sessionDeadline *time.Time
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(map[string]*payments.Session),
		details:  make(map[string]*payments.PaymentDetail),
	}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, input payments.CreateSessionInput) (*payments.Session, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, input)
	session := &payments.Session{
		ID:       "cs_" + uuid.NewString()[:8],
		URL:      "https://checkout.example.com/session",
		Metadata: input.Metadata,
	}
	g.sessions[session.ID] = session
	return session, nil
}

func (g *fakeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*payments.Session, error) {
	if deadline, ok := ctx.Deadline(); ok {
		g.sessionDeadline = &deadline
	}
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	return session, nil
}

func (g *fakeGateway) GetPaymentDetail(_ context.Context, paymentIntentID string) (*payments.PaymentDetail, error) {
	if g.detailErr != nil {
		return nil, g.detailErr
	}
	detail, ok := g.details[paymentIntentID]
	if !ok {
		return nil, payments.ErrSessionNotFound
	}
	return detail, nil
}

func (g *fakeGateway) VerifyWebhook(_ []byte, _ string) (*payments.WebhookEvent, error) {
	return nil, errors.New("fake gateway: not implemented")
}

type recordingMailer struct {
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type failingMailer struct{}

func (failingMailer) Send(_ context.Context, _ mail.Message) error {
	return errors.New("smtp down")
}

func strref(s string) *string { return &s }

func int64ref(v int64) *int64 { return &v }
