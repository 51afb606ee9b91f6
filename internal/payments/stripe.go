package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds the credentials for the Stripe-backed gateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway constructs a StripeGateway from configuration.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe: secret key is required")
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeGateway{
		api:           api,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
	}, nil
}

// CreateCheckoutSession opens a one-off card payment session with trusted
// entity identifiers stored in the session metadata.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, input CreateSessionInput) (*Session, error) {
	currency := input.Currency
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(input.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s Plan", input.PlanName)),
					},
				},
			},
		},
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.mapError("create checkout session", err)
	}

	return sessionFromStripe(sess), nil
}

// GetCheckoutSession re-fetches a checkout session by id.
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, g.mapError("get checkout session", err)
	}

	return sessionFromStripe(sess), nil
}

// GetPaymentDetail retrieves the payment intent with its latest charge
// expanded and flattens the card metadata for the billing record.
func (g *StripeGateway) GetPaymentDetail(ctx context.Context, paymentIntentID string) (*PaymentDetail, error) {
	params := &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("latest_charge")

	pi, err := g.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, g.mapError("get payment intent", err)
	}

	detail := &PaymentDetail{PaymentIntentID: paymentIntentID}
	detail.AmountCents = int64Ptr(pi.Amount)
	if pi.Currency != "" {
		detail.Currency = strPtr(strings.ToUpper(string(pi.Currency)))
	}

	charge := pi.LatestCharge
	if charge == nil {
		return detail, nil
	}

	detail.ChargeID = strPtr(charge.ID)
	detail.ReceiptURL = strPtr(charge.ReceiptURL)
	if pmd := charge.PaymentMethodDetails; pmd != nil && pmd.Card != nil {
		detail.CardBrand = strPtr(string(pmd.Card.Brand))
		detail.CardLast4 = strPtr(pmd.Card.Last4)
		detail.CardExpMonth = intPtr(int(pmd.Card.ExpMonth))
		detail.CardExpYear = intPtr(int(pmd.Card.ExpYear))
	}

	return detail, nil
}

// VerifyWebhook authenticates a raw payload against the Stripe-Signature
// header. Signature verification is the sole authentication mechanism for the
// webhook endpoint.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, errors.New("stripe: webhook secret is not configured")
	}
	if strings.TrimSpace(signature) == "" {
		return nil, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	decoded := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if decoded.Type == EventCheckoutCompleted {
		var sess stripe.CheckoutSession
		if err := sess.UnmarshalJSON(event.Data.Raw); err != nil {
			return nil, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		decoded.Session = sessionFromStripe(&sess)
	}

	return decoded, nil
}

func (g *StripeGateway) mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("stripe: %s: %w", op, ErrSessionNotFound)
		}
		return fmt.Errorf("stripe: %s: %w", op, err)
	}

	// Anything without a Stripe error envelope is a transport failure.
	return fmt.Errorf("stripe: %s: %w", op, ErrUnavailable)
}

func sessionFromStripe(sess *stripe.CheckoutSession) *Session {
	if sess == nil {
		return nil
	}

	out := &Session{
		ID:       sess.ID,
		URL:      sess.URL,
		Metadata: sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func int64Ptr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
