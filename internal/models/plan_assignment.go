package models

import "time"

// PlanAssignment links a company to a purchased plan for one billing period.
//
// The invoice number format and the payment metadata column names are part of
// the external reporting contract; do not rename them.
//
// Invariant: at most one assignment with IsActive = true exists per company.
// The activation service enforces this by serialising on the company row.
type PlanAssignment struct {
	BaseModel

	CompanyID string   `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   *Company `json:"company,omitempty"`

	UserID string `gorm:"type:uuid;not null" json:"user_id"`
	PlanID string `gorm:"type:uuid;not null" json:"plan_id"`
	Plan   *Plan  `json:"plan,omitempty"`

	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	IsActive  bool       `gorm:"default:false;index" json:"is_active"`

	InvoiceNumber string `gorm:"index" json:"invoice_number"`

	// Payment metadata, absent for invitation-driven activations.
	AmountCents     *int64  `json:"amount_cents"`
	Currency        *string `json:"currency"`
	PaymentIntentID *string `json:"payment_intent_id"`
	ChargeID        *string `json:"charge_id"`
	CardBrand       *string `json:"card_brand"`
	CardLast4       *string `json:"card_last4"`
	CardExpMonth    *int    `json:"card_exp_month"`
	CardExpYear     *int    `json:"card_exp_year"`
	ReceiptURL      *string `json:"receipt_url"`

	CreatedBy string `json:"created_by"`
}
