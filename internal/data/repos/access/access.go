package access

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type SearchAccessRepo interface {
	// GetOrCreate returns the access row for a context key, inserting it once.
	GetOrCreate(dbc dbctx.Context, contextKey string) (*types.SearchAccess, error)
	GetByContextKeys(dbc dbctx.Context, contextKeys []string) (map[string]*types.SearchAccess, error)
}

type UserRoleRepo interface {
	Create(dbc dbctx.Context, role *types.UserRole) error
	// ListByUser returns roles newest first.
	ListByUser(dbc dbctx.Context, userID string) ([]*types.UserRole, error)
}

type searchAccessRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSearchAccessRepo(db *gorm.DB, baseLog *logger.Logger) SearchAccessRepo {
	return &searchAccessRepo{db: db, log: baseLog.With("repo", "SearchAccessRepo")}
}

func (r *searchAccessRepo) GetOrCreate(dbc dbctx.Context, contextKey string) (*types.SearchAccess, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if contextKey == "" {
		return nil, errors.New("context key required")
	}
	row := &types.SearchAccess{ContextKey: contextKey, CreatedAt: time.Now()}
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "context_key"}}, DoNothing: true}).
		Create(row).Error; err != nil {
		return nil, err
	}
	var out types.SearchAccess
	if err := transaction.WithContext(dbc.Ctx).
		Where("context_key = ?", contextKey).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &out, nil
}

// contextKeyBatch keeps IN lists under SQLite's bound-parameter limit.
const contextKeyBatch = 500

func (r *searchAccessRepo) GetByContextKeys(dbc dbctx.Context, contextKeys []string) (map[string]*types.SearchAccess, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[string]*types.SearchAccess, len(contextKeys))
	if len(contextKeys) == 0 {
		return out, nil
	}
	for start := 0; start < len(contextKeys); start += contextKeyBatch {
		end := start + contextKeyBatch
		if end > len(contextKeys) {
			end = len(contextKeys)
		}
		var rows []*types.SearchAccess
		if err := transaction.WithContext(dbc.Ctx).
			Where("context_key IN ?", contextKeys[start:end]).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.ContextKey] = row
		}
	}
	return out, nil
}

type userRoleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRoleRepo(db *gorm.DB, baseLog *logger.Logger) UserRoleRepo {
	return &userRoleRepo{db: db, log: baseLog.With("repo", "UserRoleRepo")}
}

func (r *userRoleRepo) Create(dbc dbctx.Context, role *types.UserRole) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).Create(role).Error
}

func (r *userRoleRepo) ListByUser(dbc dbctx.Context, userID string) ([]*types.UserRole, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.UserRole
	if userID == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
