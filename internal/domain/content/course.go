package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseKey   string    `gorm:"column:course_key;not null;uniqueIndex" json:"course_key"`
	Org         string    `gorm:"column:org;not null;index" json:"org"`
	DisplayName string    `gorm:"column:display_name;not null" json:"display_name"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// CourseBlock is one node of a course tree. Children are the rows whose
// ParentUsageKey points here, ordered by Position.
type CourseBlock struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseKey      string         `gorm:"column:course_key;not null;index" json:"course_key"`
	UsageKey       string         `gorm:"column:usage_key;not null;uniqueIndex" json:"usage_key"`
	BlockType      string         `gorm:"column:block_type;not null;index" json:"block_type"`
	BlockID        string         `gorm:"column:block_id;not null" json:"block_id"`
	ParentUsageKey string         `gorm:"column:parent_usage_key;index" json:"parent_usage_key,omitempty"`
	Position       int            `gorm:"column:position;not null" json:"position"`
	DefinitionID   *uuid.UUID     `gorm:"type:uuid;column:definition_id;index" json:"definition_id,omitempty"`
	DisplayName    string         `gorm:"column:display_name" json:"display_name"`
	Settings       datatypes.JSON `gorm:"column:settings" json:"settings,omitempty"`

	// Upstream pointer for blocks copied out of a library.
	CopiedFromLibrary  string `gorm:"column:copied_from_library;index" json:"copied_from_library,omitempty"`
	CopiedFromUsageKey string `gorm:"column:copied_from_usage_key;index" json:"copied_from_usage_key,omitempty"`
	CopiedFromVersion  string `gorm:"column:copied_from_version" json:"copied_from_version,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CourseBlock) TableName() string { return "course_block" }
