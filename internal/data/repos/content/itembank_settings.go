package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type ItemBankSettingsRepo interface {
	Create(dbc dbctx.Context, s *types.ItemBankSettings) error
	GetByUsageKey(dbc dbctx.Context, usageKey string) (*types.ItemBankSettings, error)
	UpdateFields(dbc dbctx.Context, usageKey string, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, usageKey string) error
}

type itemBankSettingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemBankSettingsRepo(db *gorm.DB, baseLog *logger.Logger) ItemBankSettingsRepo {
	return &itemBankSettingsRepo{
		db:  db,
		log: baseLog.With("repo", "ItemBankSettingsRepo"),
	}
}

func (r *itemBankSettingsRepo) Create(dbc dbctx.Context, s *types.ItemBankSettings) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return transaction.WithContext(dbc.Ctx).Create(s).Error
}

func (r *itemBankSettingsRepo) GetByUsageKey(dbc dbctx.Context, usageKey string) (*types.ItemBankSettings, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if usageKey == "" {
		return nil, nil
	}
	var s types.ItemBankSettings
	if err := transaction.WithContext(dbc.Ctx).
		Where("usage_key = ?", usageKey).
		Limit(1).
		Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *itemBankSettingsRepo) UpdateFields(dbc dbctx.Context, usageKey string, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if usageKey == "" || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ItemBankSettings{}).
		Where("usage_key = ?", usageKey).
		Updates(updates).Error
}

func (r *itemBankSettingsRepo) Delete(dbc dbctx.Context, usageKey string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if usageKey == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("usage_key = ?", usageKey).
		Delete(&types.ItemBankSettings{}).Error
}
