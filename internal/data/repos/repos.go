package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/contentlib/internal/data/repos/access"
	"github.com/yungbote/contentlib/internal/data/repos/content"
	"github.com/yungbote/contentlib/internal/data/repos/jobs"
	"github.com/yungbote/contentlib/internal/data/repos/tagging"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

// Set is every repo bound to one database handle.
type Set struct {
	Libraries    content.LibraryRepo
	Versions     content.LibraryVersionRepo
	Definitions  content.DefinitionRepo
	Courses      content.CourseRepo
	CourseBlocks content.CourseBlockRepo
	ItemBanks    content.ItemBankSettingsRepo
	Selections   content.LearnerSelectionRepo
	BlockStates  content.LearnerBlockStateRepo

	Taxonomies tagging.TaxonomyRepo
	Tags       tagging.TagRepo
	ObjectTags tagging.ObjectTagRepo

	SearchAccess access.SearchAccessRepo
	UserRoles    access.UserRoleRepo

	JobRuns jobs.JobRunRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Libraries:    content.NewLibraryRepo(db, log),
		Versions:     content.NewLibraryVersionRepo(db, log),
		Definitions:  content.NewDefinitionRepo(db, log),
		Courses:      content.NewCourseRepo(db, log),
		CourseBlocks: content.NewCourseBlockRepo(db, log),
		ItemBanks:    content.NewItemBankSettingsRepo(db, log),
		Selections:   content.NewLearnerSelectionRepo(db, log),
		BlockStates:  content.NewLearnerBlockStateRepo(db, log),

		Taxonomies: tagging.NewTaxonomyRepo(db, log),
		Tags:       tagging.NewTagRepo(db, log),
		ObjectTags: tagging.NewObjectTagRepo(db, log),

		SearchAccess: access.NewSearchAccessRepo(db, log),
		UserRoles:    access.NewUserRoleRepo(db, log),

		JobRuns: jobs.NewJobRunRepo(db, log),
	}
}
