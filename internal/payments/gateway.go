// Package payments wraps the external payment gateway behind a narrow
// interface so the activation pipeline never depends on gateway SDK types.
package payments

import "context"

// Metadata keys attached to checkout sessions. Session metadata is the only
// trusted source for entity identifiers on the completion paths; request
// bodies are never consulted.
const (
	MetadataUserID    = "userId"
	MetadataCompanyID = "companyId"
	MetadataPlanID    = "planId"
)

// EventCheckoutCompleted is the gateway event type that triggers activation.
const EventCheckoutCompleted = "checkout.session.completed"

// CreateSessionInput describes a checkout session to open with the gateway.
type CreateSessionInput struct {
	PlanName    string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// Session is the gateway's view of a checkout session.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	Metadata        map[string]string
}

// PaymentDetail carries audit-trail charge metadata for a completed payment.
// Every field is optional; enrichment failures simply leave them unset.
type PaymentDetail struct {
	PaymentIntentID string
	AmountCents     *int64
	Currency        *string
	ChargeID        *string
	ReceiptURL      *string
	CardBrand       *string
	CardLast4       *string
	CardExpMonth    *int
	CardExpYear     *int
}

// WebhookEvent is a verified gateway callback.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *Session // populated for checkout completion events
}

// Gateway is the payment-processing collaborator used by the onboarding
// pipeline.
type Gateway interface {
	// CreateCheckoutSession opens a hosted payment session for a plan purchase.
	CreateCheckoutSession(ctx context.Context, input CreateSessionInput) (*Session, error)

	// GetCheckoutSession re-fetches a session by id, used by the polling
	// fallback after the browser redirect.
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)

	// GetPaymentDetail fetches charge metadata for a completed payment intent.
	GetPaymentDetail(ctx context.Context, paymentIntentID string) (*PaymentDetail, error)

	// VerifyWebhook authenticates a raw webhook payload against its signature
	// header and decodes the event.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
