package domain

import (
	"github.com/yungbote/contentlib/internal/domain/access"
	"github.com/yungbote/contentlib/internal/domain/content"
	"github.com/yungbote/contentlib/internal/domain/jobs"
	"github.com/yungbote/contentlib/internal/domain/tagging"
)

type Library = content.Library
type LibraryVersion = content.LibraryVersion
type LibraryStructure = content.LibraryStructure
type StructureBlock = content.StructureBlock
type Definition = content.Definition
type Course = content.Course
type CourseBlock = content.CourseBlock
type ItemBankSettings = content.ItemBankSettings
type LearnerSelection = content.LearnerSelection
type LearnerBlockState = content.LearnerBlockState

type Taxonomy = tagging.Taxonomy
type Tag = tagging.Tag
type ObjectTag = tagging.ObjectTag

type SearchAccess = access.SearchAccess
type UserRole = access.UserRole

type JobRun = jobs.JobRun

const (
	ModeRandom  = content.ModeRandom
	ModeFirst   = content.ModeFirst
	CapaTypeAny = content.CapaTypeAny

	BlockTypeItemBank = content.BlockTypeItemBank
	BlockTypeCourse   = content.BlockTypeCourse
	BlockTypeProblem  = content.BlockTypeProblem
	BlockTypeHTML     = content.BlockTypeHTML

	RoleGlobalStaff = access.RoleGlobalStaff
	RoleOrgStaff    = access.RoleOrgStaff
	RoleInstructor  = access.RoleInstructor

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusFailed    = jobs.StatusFailed
	JobStatusSucceeded = jobs.StatusSucceeded
)

// AllModels lists every persisted model in migration order.
func AllModels() []any {
	return []any{
		&Library{},
		&LibraryVersion{},
		&Definition{},
		&Course{},
		&CourseBlock{},
		&ItemBankSettings{},
		&LearnerSelection{},
		&LearnerBlockState{},
		&Taxonomy{},
		&Tag{},
		&ObjectTag{},
		&SearchAccess{},
		&UserRole{},
		&JobRun{},
	}
}
