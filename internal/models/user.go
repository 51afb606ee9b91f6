package models

import "time"

// UserStatus tracks where an account sits in the onboarding lifecycle.
type UserStatus string

const (
	// UserStatusInvited marks accounts created through a teammate invitation
	// that have not accepted yet.
	UserStatusInvited UserStatus = "Invited"
	// UserStatusActive marks accounts that may authenticate.
	UserStatusActive UserStatus = "Active"
	// UserStatusInActive marks accounts awaiting payment or explicitly deactivated.
	UserStatusInActive UserStatus = "InActive"
)

// User is a login-capable identity: company administrator, employee, or client.
type User struct {
	BaseModel

	Name         string `json:"name"`
	LastName     string `json:"last_name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Password     string `gorm:"not null" json:"-"`
	MobileNumber string `json:"mobile_number"`

	RoleID *string `gorm:"type:uuid" json:"role_id"`
	Role   *Role   `json:"role,omitempty"`

	Status UserStatus `gorm:"type:varchar(16);default:'InActive';index" json:"status"`

	InvitationToken     *string    `gorm:"uniqueIndex" json:"-"`
	InvitationExpiresAt *time.Time `json:"-"`

	CreatedBy string `json:"created_by"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}
