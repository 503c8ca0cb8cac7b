package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type CourseBlockRepo interface {
	Create(dbc dbctx.Context, blocks []*types.CourseBlock) ([]*types.CourseBlock, error)
	GetByUsageKey(dbc dbctx.Context, usageKey string) (*types.CourseBlock, error)
	GetByUsageKeys(dbc dbctx.Context, usageKeys []string) ([]*types.CourseBlock, error)
	ListChildren(dbc dbctx.Context, parentUsageKey string) ([]*types.CourseBlock, error)
	ListByCourse(dbc dbctx.Context, courseKey string) ([]*types.CourseBlock, error)
	ListByParents(dbc dbctx.Context, parentUsageKeys []string) ([]*types.CourseBlock, error)
	// ListByCopiedFrom returns course copies of the given library blocks.
	ListByCopiedFrom(dbc dbctx.Context, libraryUsageKeys []string) ([]*types.CourseBlock, error)
	NextPosition(dbc dbctx.Context, parentUsageKey string) (int, error)
	UpdateFields(dbc dbctx.Context, usageKey string, updates map[string]interface{}) error
	DeleteByUsageKeys(dbc dbctx.Context, usageKeys []string) error
}

type courseBlockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseBlockRepo(db *gorm.DB, baseLog *logger.Logger) CourseBlockRepo {
	return &courseBlockRepo{
		db:  db,
		log: baseLog.With("repo", "CourseBlockRepo"),
	}
}

func (r *courseBlockRepo) Create(dbc dbctx.Context, blocks []*types.CourseBlock) ([]*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(blocks) == 0 {
		return []*types.CourseBlock{}, nil
	}
	for _, b := range blocks {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}

func (r *courseBlockRepo) GetByUsageKey(dbc dbctx.Context, usageKey string) (*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if usageKey == "" {
		return nil, nil
	}
	var b types.CourseBlock
	if err := transaction.WithContext(dbc.Ctx).
		Where("usage_key = ?", usageKey).
		Limit(1).
		Find(&b).Error; err != nil {
		return nil, err
	}
	if b.ID == uuid.Nil {
		return nil, nil
	}
	return &b, nil
}

func (r *courseBlockRepo) GetByUsageKeys(dbc dbctx.Context, usageKeys []string) ([]*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CourseBlock
	if len(usageKeys) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("usage_key IN ?", usageKeys).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseBlockRepo) ListChildren(dbc dbctx.Context, parentUsageKey string) ([]*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CourseBlock
	if parentUsageKey == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("parent_usage_key = ?", parentUsageKey).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseBlockRepo) ListByParents(dbc dbctx.Context, parentUsageKeys []string) ([]*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CourseBlock
	if len(parentUsageKeys) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("parent_usage_key IN ?", parentUsageKeys).
		Order("parent_usage_key ASC, position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseBlockRepo) ListByCopiedFrom(dbc dbctx.Context, libraryUsageKeys []string) ([]*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CourseBlock
	if len(libraryUsageKeys) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("copied_from_usage_key IN ?", libraryUsageKeys).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseBlockRepo) ListByCourse(dbc dbctx.Context, courseKey string) ([]*types.CourseBlock, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CourseBlock
	if courseKey == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("course_key = ?", courseKey).
		Order("parent_usage_key ASC, position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseBlockRepo) NextPosition(dbc dbctx.Context, parentUsageKey string) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	maxPos := -1
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.CourseBlock{}).
		Where("parent_usage_key = ?", parentUsageKey).
		Select("COALESCE(MAX(position), -1)").
		Scan(&maxPos).Error; err != nil {
		return 0, err
	}
	return maxPos + 1, nil
}

func (r *courseBlockRepo) UpdateFields(dbc dbctx.Context, usageKey string, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if usageKey == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.CourseBlock{}).
		Where("usage_key = ?", usageKey).
		Updates(updates).Error
}

func (r *courseBlockRepo) DeleteByUsageKeys(dbc dbctx.Context, usageKeys []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(usageKeys) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("usage_key IN ?", usageKeys).
		Delete(&types.CourseBlock{}).Error
}
