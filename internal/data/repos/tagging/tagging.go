package tagging

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type TaxonomyRepo interface {
	Create(dbc dbctx.Context, tax *types.Taxonomy) error
	GetByName(dbc dbctx.Context, name string) (*types.Taxonomy, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Taxonomy, error)
}

type TagRepo interface {
	Create(dbc dbctx.Context, tag *types.Tag) error
	GetByValue(dbc dbctx.Context, taxonomyID uuid.UUID, value string) (*types.Tag, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Tag, error)
	ListByTaxonomy(dbc dbctx.Context, taxonomyID uuid.UUID) ([]*types.Tag, error)
}

type ObjectTagRepo interface {
	ListByObject(dbc dbctx.Context, objectKey string) ([]*types.ObjectTag, error)
	ListByObjects(dbc dbctx.Context, objectKeys []string) ([]*types.ObjectTag, error)
	// ReplaceForObject swaps every tag an object holds in the given taxonomy.
	ReplaceForObject(dbc dbctx.Context, objectKey string, taxonomyID uuid.UUID, tags []*types.ObjectTag) error
	DeleteByObjects(dbc dbctx.Context, objectKeys []string) error
}

type taxonomyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaxonomyRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyRepo {
	return &taxonomyRepo{db: db, log: baseLog.With("repo", "TaxonomyRepo")}
}

func (r *taxonomyRepo) Create(dbc dbctx.Context, tax *types.Taxonomy) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tax.ID == uuid.Nil {
		tax.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(tax).Error
}

func (r *taxonomyRepo) GetByName(dbc dbctx.Context, name string) (*types.Taxonomy, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var tax types.Taxonomy
	if err := transaction.WithContext(dbc.Ctx).
		Where("name = ?", name).
		Limit(1).
		Find(&tax).Error; err != nil {
		return nil, err
	}
	if tax.ID == uuid.Nil {
		return nil, nil
	}
	return &tax, nil
}

func (r *taxonomyRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Taxonomy, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]*types.Taxonomy, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*types.Taxonomy
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, t := range rows {
		out[t.ID] = t
	}
	return out, nil
}

type tagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo {
	return &tagRepo{db: db, log: baseLog.With("repo", "TagRepo")}
}

func (r *tagRepo) Create(dbc dbctx.Context, tag *types.Tag) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(tag).Error
}

func (r *tagRepo) GetByValue(dbc dbctx.Context, taxonomyID uuid.UUID, value string) (*types.Tag, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var tag types.Tag
	if err := transaction.WithContext(dbc.Ctx).
		Where("taxonomy_id = ? AND value = ?", taxonomyID, value).
		Limit(1).
		Find(&tag).Error; err != nil {
		return nil, err
	}
	if tag.ID == uuid.Nil {
		return nil, nil
	}
	return &tag, nil
}

func (r *tagRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Tag, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]*types.Tag, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*types.Tag
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, t := range rows {
		out[t.ID] = t
	}
	return out, nil
}

func (r *tagRepo) ListByTaxonomy(dbc dbctx.Context, taxonomyID uuid.UUID) ([]*types.Tag, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Tag
	if err := transaction.WithContext(dbc.Ctx).
		Where("taxonomy_id = ?", taxonomyID).
		Order("value ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type objectTagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObjectTagRepo(db *gorm.DB, baseLog *logger.Logger) ObjectTagRepo {
	return &objectTagRepo{db: db, log: baseLog.With("repo", "ObjectTagRepo")}
}

func (r *objectTagRepo) ListByObject(dbc dbctx.Context, objectKey string) ([]*types.ObjectTag, error) {
	return r.ListByObjects(dbc, []string{objectKey})
}

func (r *objectTagRepo) ListByObjects(dbc dbctx.Context, objectKeys []string) ([]*types.ObjectTag, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ObjectTag
	if len(objectKeys) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("object_key IN ?", objectKeys).
		Order("object_key ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *objectTagRepo) ReplaceForObject(dbc dbctx.Context, objectKey string, taxonomyID uuid.UUID, tags []*types.ObjectTag) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("object_key = ? AND taxonomy_id = ?", objectKey, taxonomyID).
			Delete(&types.ObjectTag{}).Error; err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		for _, t := range tags {
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
		}
		return txx.Create(&tags).Error
	})
}

func (r *objectTagRepo) DeleteByObjects(dbc dbctx.Context, objectKeys []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(objectKeys) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("object_key IN ?", objectKeys).
		Delete(&types.ObjectTag{}).Error
}
