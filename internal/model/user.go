package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents the user identity record stored in the database. The
// password hash is nullable: a user provisioned for SSO may have none.
type User struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email          string    `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	HashedPassword *string   `json:"-" gorm:"type:varchar(255)"`
	EmailVerified  bool      `json:"email_verified" gorm:"default:false"`
	FullName       *string   `json:"full_name,omitempty" gorm:"type:varchar(255)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DisplayName returns the full name, falling back to the email address.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Email
}

// Roles a user may hold. A user can hold several role records, e.g. an
// agency owner who is also a tenant elsewhere.
const (
	RoleSysadmin    = "sysadmin"
	RoleAgencyOwner = "agency_owner"
	RoleAgencyStaff = "agency_staff"
	RoleTenant      = "tenant"
	RoleTechnician  = "technician"
)

// UserRole links a user to a role and optionally the agency it applies to.
// Read when building the authenticated identity's auth context.
type UserRole struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	Role        string     `json:"role" gorm:"type:varchar(50);not null"`
	AgencyID    *uuid.UUID `json:"agency_id,omitempty" gorm:"type:uuid;index"`
	Permissions string     `json:"permissions" gorm:"type:jsonb;default:'[]'"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}
