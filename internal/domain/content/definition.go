package content

import (
	"time"

	"github.com/google/uuid"
)

// Definition is the content-scope payload of a block (problem markup, HTML
// body). Library blocks and every course copy of them point at the same row.
type Definition struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BlockType string    `gorm:"column:block_type;not null;index" json:"block_type"`
	Data      string    `gorm:"column:data;type:text" json:"data"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Definition) TableName() string { return "definition" }
