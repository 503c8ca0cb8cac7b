package tagging

import (
	"time"

	"github.com/google/uuid"
)

type Taxonomy struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	Enabled     bool      `gorm:"column:enabled;not null" json:"enabled"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Taxonomy) TableName() string { return "taxonomy" }

// Tag is one node of a taxonomy's hierarchy; ParentID is nil at depth 0.
type Tag struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TaxonomyID uuid.UUID  `gorm:"type:uuid;not null;index:idx_tag_taxonomy_value,unique,priority:1" json:"taxonomy_id"`
	ParentID   *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`
	Value      string     `gorm:"column:value;not null;index:idx_tag_taxonomy_value,unique,priority:2" json:"value"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (Tag) TableName() string { return "tag" }

// ObjectTag applies a tag to a block, addressed by usage key.
type ObjectTag struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ObjectKey  string    `gorm:"column:object_key;not null;index:idx_object_tag_obj_tag,unique,priority:1;index" json:"object_key"`
	TaxonomyID uuid.UUID `gorm:"type:uuid;not null;index" json:"taxonomy_id"`
	TagID      uuid.UUID `gorm:"type:uuid;not null;index:idx_object_tag_obj_tag,unique,priority:2" json:"tag_id"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (ObjectTag) TableName() string { return "object_tag" }
