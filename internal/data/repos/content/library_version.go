package content

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type LibraryVersionRepo interface {
	Create(dbc dbctx.Context, v *types.LibraryVersion) error
	Get(dbc dbctx.Context, libraryID uuid.UUID, version string) (*types.LibraryVersion, error)
}

type libraryVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLibraryVersionRepo(db *gorm.DB, baseLog *logger.Logger) LibraryVersionRepo {
	return &libraryVersionRepo{
		db:  db,
		log: baseLog.With("repo", "LibraryVersionRepo"),
	}
}

func (r *libraryVersionRepo) Create(dbc dbctx.Context, v *types.LibraryVersion) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(v).Error
}

// Get returns nil, nil when the version does not exist.
func (r *libraryVersionRepo) Get(dbc dbctx.Context, libraryID uuid.UUID, version string) (*types.LibraryVersion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if libraryID == uuid.Nil || version == "" {
		return nil, nil
	}
	var v types.LibraryVersion
	if err := transaction.WithContext(dbc.Ctx).
		Where("library_id = ? AND version = ?", libraryID, version).
		Limit(1).
		Find(&v).Error; err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}
