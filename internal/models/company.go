package models

// Company is a tenant: it owns employees, clients, and billing records.
//
// IsActive only ever becomes true through activation (payment confirmed or
// invitation accepted), never through signup alone.
type Company struct {
	BaseModel

	UserID *string `gorm:"type:uuid;index" json:"user_id"`
	User   *User   `json:"user,omitempty"`

	PlanID *string `gorm:"type:uuid" json:"plan_id"`
	Plan   *Plan   `json:"plan,omitempty"`

	CompanyName         string `gorm:"not null" json:"company_name"`
	Industry            string `json:"industry"`
	CompanyEmail        string `json:"company_email"`
	CompanyMobileNumber string `json:"company_mobile_number"`
	Address             string `json:"address"`
	City                string `json:"city"`
	State               string `json:"state"`

	IsActive  bool   `gorm:"default:false;index" json:"is_active"`
	CreatedBy string `json:"created_by"`
}
