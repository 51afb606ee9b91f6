package models

import "gorm.io/datatypes"

// PlanDuration describes a plan's billing cadence.
type PlanDuration string

const (
	PlanDurationMonthly PlanDuration = "Monthly"
	PlanDurationAnnual  PlanDuration = "Annual"
)

// Plan is a subscription catalog entry a company can purchase.
type Plan struct {
	BaseModel

	PlanName string       `gorm:"uniqueIndex;not null" json:"plan_name"`
	Duration PlanDuration `gorm:"type:varchar(16)" json:"duration"`
	// Rate is the plan price in USD.
	Rate      float64        `json:"rate"`
	IsPopular bool           `gorm:"default:false" json:"is_popular"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	Features  datatypes.JSON `json:"features"`

	CreatedBy string `json:"created_by"`
}
