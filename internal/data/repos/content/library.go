package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type LibraryRepo interface {
	Create(dbc dbctx.Context, lib *types.Library) error
	GetByKey(dbc dbctx.Context, libraryKey string) (*types.Library, error)
	GetByKeys(dbc dbctx.Context, libraryKeys []string) ([]*types.Library, error)
	List(dbc dbctx.Context) ([]*types.Library, error)
	AdvanceVersion(dbc dbctx.Context, id uuid.UUID, version string, seq int64) error
}

type libraryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLibraryRepo(db *gorm.DB, baseLog *logger.Logger) LibraryRepo {
	return &libraryRepo{
		db:  db,
		log: baseLog.With("repo", "LibraryRepo"),
	}
}

func (r *libraryRepo) Create(dbc dbctx.Context, lib *types.Library) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if lib.ID == uuid.Nil {
		lib.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(lib).Error
}

// GetByKey returns nil, nil when the library does not exist.
func (r *libraryRepo) GetByKey(dbc dbctx.Context, libraryKey string) (*types.Library, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if libraryKey == "" {
		return nil, nil
	}
	var lib types.Library
	if err := transaction.WithContext(dbc.Ctx).
		Where("library_key = ?", libraryKey).
		Limit(1).
		Find(&lib).Error; err != nil {
		return nil, err
	}
	if lib.ID == uuid.Nil {
		return nil, nil
	}
	return &lib, nil
}

func (r *libraryRepo) GetByKeys(dbc dbctx.Context, libraryKeys []string) ([]*types.Library, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Library
	if len(libraryKeys) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("library_key IN ?", libraryKeys).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *libraryRepo) List(dbc dbctx.Context) ([]*types.Library, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Library
	if err := transaction.WithContext(dbc.Ctx).
		Order("library_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *libraryRepo) AdvanceVersion(dbc dbctx.Context, id uuid.UUID, version string, seq int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Library{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_version": version,
			"version_seq":     seq,
			"updated_at":      time.Now(),
		}).Error
}
