package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Library is the mutable head of a content library. Its blocks live in the
// immutable LibraryVersion snapshot named by CurrentVersion.
type Library struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LibraryKey     string    `gorm:"column:library_key;not null;uniqueIndex" json:"library_key"`
	Org            string    `gorm:"column:org;not null;index" json:"org"`
	Slug           string    `gorm:"column:slug;not null" json:"slug"`
	DisplayName    string    `gorm:"column:display_name;not null" json:"display_name"`
	CurrentVersion string    `gorm:"column:current_version;not null" json:"current_version"`
	VersionSeq     int64     `gorm:"column:version_seq;not null" json:"version_seq"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (Library) TableName() string { return "library" }

// LibraryVersion is an immutable snapshot of a library's block tree.
// Structure holds a JSON-encoded LibraryStructure.
type LibraryVersion struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	LibraryID uuid.UUID      `gorm:"type:uuid;not null;index:idx_library_version_lib_version,unique,priority:1" json:"library_id"`
	Version   string         `gorm:"column:version;not null;index:idx_library_version_lib_version,unique,priority:2" json:"version"`
	Seq       int64          `gorm:"column:seq;not null" json:"seq"`
	Structure datatypes.JSON `gorm:"column:structure" json:"structure"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (LibraryVersion) TableName() string { return "library_version" }

// LibraryStructure is the decoded snapshot: top-level block ids in order plus
// every block in the library keyed by block id.
type LibraryStructure struct {
	DisplayName string                     `json:"display_name"`
	Children    []string                   `json:"children"`
	Blocks      map[string]*StructureBlock `json:"blocks"`
}

// StructureBlock carries the settings-scope fields of a library block. Content
// lives in the shared Definition it points at.
type StructureBlock struct {
	BlockType    string         `json:"block_type"`
	DefinitionID uuid.UUID      `json:"definition_id"`
	DisplayName  string         `json:"display_name,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	Children     []string       `json:"children,omitempty"`
}

// Clone deep-copies the structure so a new version can be derived from it.
func (s *LibraryStructure) Clone() *LibraryStructure {
	if s == nil {
		return &LibraryStructure{Blocks: map[string]*StructureBlock{}}
	}
	out := &LibraryStructure{
		DisplayName: s.DisplayName,
		Children:    append([]string(nil), s.Children...),
		Blocks:      make(map[string]*StructureBlock, len(s.Blocks)),
	}
	for id, b := range s.Blocks {
		if b == nil {
			continue
		}
		cp := *b
		cp.Children = append([]string(nil), b.Children...)
		if b.Settings != nil {
			cp.Settings = make(map[string]any, len(b.Settings))
			for k, v := range b.Settings {
				cp.Settings[k] = v
			}
		}
		out.Blocks[id] = &cp
	}
	return out
}

// ParentOf returns the id of the block that lists id as a child, or "" when id
// is top-level or unknown.
func (s *LibraryStructure) ParentOf(id string) string {
	if s == nil {
		return ""
	}
	for pid, b := range s.Blocks {
		for _, c := range b.Children {
			if c == id {
				return pid
			}
		}
	}
	return ""
}
