package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type DefinitionRepo interface {
	Create(dbc dbctx.Context, def *types.Definition) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Definition, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Definition, error)
	UpdateData(dbc dbctx.Context, id uuid.UUID, data string) error
}

type definitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDefinitionRepo(db *gorm.DB, baseLog *logger.Logger) DefinitionRepo {
	return &definitionRepo{
		db:  db,
		log: baseLog.With("repo", "DefinitionRepo"),
	}
}

func (r *definitionRepo) Create(dbc dbctx.Context, def *types.Definition) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(def).Error
}

func (r *definitionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Definition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var def types.Definition
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&def).Error; err != nil {
		return nil, err
	}
	if def.ID == uuid.Nil {
		return nil, nil
	}
	return &def, nil
}

func (r *definitionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Definition, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]*types.Definition, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*types.Definition
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, d := range rows {
		out[d.ID] = d
	}
	return out, nil
}

func (r *definitionRepo) UpdateData(dbc dbctx.Context, id uuid.UUID, data string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Definition{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"data":       data,
			"updated_at": time.Now(),
		}).Error
}
