package content

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type CourseRepo interface {
	Create(dbc dbctx.Context, course *types.Course) error
	GetByKey(dbc dbctx.Context, courseKey string) (*types.Course, error)
	List(dbc dbctx.Context) ([]*types.Course, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{
		db:  db,
		log: baseLog.With("repo", "CourseRepo"),
	}
}

func (r *courseRepo) Create(dbc dbctx.Context, course *types.Course) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(course).Error
}

func (r *courseRepo) GetByKey(dbc dbctx.Context, courseKey string) (*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if courseKey == "" {
		return nil, nil
	}
	var course types.Course
	if err := transaction.WithContext(dbc.Ctx).
		Where("course_key = ?", courseKey).
		Limit(1).
		Find(&course).Error; err != nil {
		return nil, err
	}
	if course.ID == uuid.Nil {
		return nil, nil
	}
	return &course, nil
}

func (r *courseRepo) List(dbc dbctx.Context) ([]*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Course
	if err := transaction.WithContext(dbc.Ctx).
		Order("course_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
