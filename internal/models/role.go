package models

// Role names seeded at start-up.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleCompany    = "Company"
	RoleManager    = "Manager"
	RoleEmployee   = "Employee"
	RoleClient     = "Client"
)

// Role classifies users by their function within a company.
type Role struct {
	BaseModel

	Name      string `gorm:"uniqueIndex;not null" json:"name"`
	CreatedBy string `json:"created_by"`
}
