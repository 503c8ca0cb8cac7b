package content

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/contentlib/internal/data/db"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type LearnerSelectionRepo interface {
	Get(dbc dbctx.Context, userID, itemBankKey string) (*types.LearnerSelection, error)
	// Insert creates the first selection row; errs.ErrConflict when another
	// writer created it first.
	Insert(dbc dbctx.Context, userID, itemBankKey string, selected []string) (*types.LearnerSelection, error)
	// CompareAndSwap writes selected only if the stored revision still equals
	// expectedRevision.
	CompareAndSwap(dbc dbctx.Context, id uuid.UUID, expectedRevision int64, selected []string) (bool, error)
	ListByItemBank(dbc dbctx.Context, itemBankKey string) ([]*types.LearnerSelection, error)
	DeleteByItemBank(dbc dbctx.Context, itemBankKey string) error
}

type learnerSelectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerSelectionRepo(db *gorm.DB, baseLog *logger.Logger) LearnerSelectionRepo {
	return &learnerSelectionRepo{
		db:  db,
		log: baseLog.With("repo", "LearnerSelectionRepo"),
	}
}

// DecodeSelected returns the ordered block ids stored on a selection row.
func DecodeSelected(row *types.LearnerSelection) []string {
	if row == nil || len(row.Selected) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(row.Selected, &out); err != nil {
		return nil
	}
	return out
}

func encodeSelected(selected []string) (datatypes.JSON, error) {
	if selected == nil {
		selected = []string{}
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (r *learnerSelectionRepo) Get(dbc dbctx.Context, userID, itemBankKey string) (*types.LearnerSelection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == "" || itemBankKey == "" {
		return nil, nil
	}
	var row types.LearnerSelection
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND item_bank_key = ?", userID, itemBankKey).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *learnerSelectionRepo) Insert(dbc dbctx.Context, userID, itemBankKey string, selected []string) (*types.LearnerSelection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	raw, err := encodeSelected(selected)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	row := &types.LearnerSelection{
		ID:          uuid.New(),
		UserID:      userID,
		ItemBankKey: itemBankKey,
		Selected:    raw,
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := transaction.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, fmt.Errorf("learner selection exists: %w", errs.ErrConflict)
		}
		return nil, err
	}
	return row, nil
}

func (r *learnerSelectionRepo) CompareAndSwap(dbc dbctx.Context, id uuid.UUID, expectedRevision int64, selected []string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	raw, err := encodeSelected(selected)
	if err != nil {
		return false, err
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.LearnerSelection{}).
		Where("id = ? AND revision = ?", id, expectedRevision).
		Updates(map[string]interface{}{
			"selected":   raw,
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *learnerSelectionRepo) ListByItemBank(dbc dbctx.Context, itemBankKey string) ([]*types.LearnerSelection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LearnerSelection
	if itemBankKey == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("item_bank_key = ?", itemBankKey).
		Order("user_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *learnerSelectionRepo) DeleteByItemBank(dbc dbctx.Context, itemBankKey string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if itemBankKey == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("item_bank_key = ?", itemBankKey).
		Delete(&types.LearnerSelection{}).Error
}
