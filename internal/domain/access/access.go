package access

import (
	"time"

	"github.com/google/uuid"
)

// SearchAccess assigns a small numeric id to a course or library so search
// tokens can filter on `access_id IN [...]` instead of long context keys.
type SearchAccess struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ContextKey string    `gorm:"column:context_key;not null;uniqueIndex" json:"context_key"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (SearchAccess) TableName() string { return "search_access" }

const (
	RoleGlobalStaff = "global_staff"
	RoleOrgStaff    = "org_staff"
	RoleInstructor  = "instructor"
)

// UserRole grants a user staff rights over an org or a single course/library.
type UserRole struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string    `gorm:"column:user_id;not null;index" json:"user_id"`
	Role       string    `gorm:"column:role;not null;index" json:"role"`
	Org        string    `gorm:"column:org" json:"org,omitempty"`
	ContextKey string    `gorm:"column:context_key" json:"context_key,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

func (UserRole) TableName() string { return "user_role" }
