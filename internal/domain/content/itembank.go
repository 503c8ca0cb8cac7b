package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ModeRandom = "random"
	ModeFirst  = "first"

	CapaTypeAny = "ANY"

	BlockTypeItemBank = "itembank"
	BlockTypeCourse   = "course"
	BlockTypeProblem  = "problem"
	BlockTypeHTML     = "html"
)

// ItemBankSettings is the author-scope configuration of an item-bank block.
// SourceLibraries stores `[[library_key, version|null], ...]`.
type ItemBankSettings struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UsageKey               string         `gorm:"column:usage_key;not null;uniqueIndex" json:"usage_key"`
	SourceLibraries        datatypes.JSON `gorm:"column:source_libraries" json:"source_libraries"`
	CapaType               string         `gorm:"column:capa_type;not null" json:"capa_type"`
	Mode                   string         `gorm:"column:mode;not null" json:"mode"`
	MaxCount               int            `gorm:"column:max_count;not null" json:"max_count"`
	AllowResettingChildren bool           `gorm:"column:allow_resetting_children;not null" json:"allow_resetting_children"`
	HasScore               bool           `gorm:"column:has_score;not null" json:"has_score"`
	Weight                 float64        `gorm:"column:weight;not null" json:"weight"`
	LastSyncedAt           *time.Time     `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt              time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updated_at"`
}

func (ItemBankSettings) TableName() string { return "item_bank_settings" }

// LearnerSelection is the per-(learner, item-bank) assignment. Revision is
// bumped on every write and used for check-and-set.
type LearnerSelection struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"column:user_id;not null;index:idx_learner_selection_user_bank,unique,priority:1" json:"user_id"`
	ItemBankKey string         `gorm:"column:item_bank_key;not null;index:idx_learner_selection_user_bank,unique,priority:2;index" json:"item_bank_key"`
	Selected    datatypes.JSON `gorm:"column:selected" json:"selected"`
	Revision    int64          `gorm:"column:revision;not null" json:"revision"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (LearnerSelection) TableName() string { return "learner_selection" }

// LearnerBlockState is user-scope state of a leaf block (problem answers,
// attempts). The problem reset hook clears it.
type LearnerBlockState struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"column:user_id;not null;index:idx_learner_block_state_user_block,unique,priority:1" json:"user_id"`
	UsageKey  string         `gorm:"column:usage_key;not null;index:idx_learner_block_state_user_block,unique,priority:2;index" json:"usage_key"`
	State     datatypes.JSON `gorm:"column:state" json:"state"`
	Attempts  int            `gorm:"column:attempts;not null" json:"attempts"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (LearnerBlockState) TableName() string { return "learner_block_state" }
