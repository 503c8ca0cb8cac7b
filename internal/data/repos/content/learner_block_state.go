package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type LearnerBlockStateRepo interface {
	Upsert(dbc dbctx.Context, st *types.LearnerBlockState) error
	Get(dbc dbctx.Context, userID, usageKey string) (*types.LearnerBlockState, error)
	Delete(dbc dbctx.Context, userID, usageKey string) (int64, error)
}

type learnerBlockStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerBlockStateRepo(db *gorm.DB, baseLog *logger.Logger) LearnerBlockStateRepo {
	return &learnerBlockStateRepo{
		db:  db,
		log: baseLog.With("repo", "LearnerBlockStateRepo"),
	}
}

func (r *learnerBlockStateRepo) Upsert(dbc dbctx.Context, st *types.LearnerBlockState) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if st == nil || st.UserID == "" || st.UsageKey == "" {
		return nil
	}
	now := time.Now()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "usage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "attempts", "updated_at"}),
		}).
		Create(st).Error
}

func (r *learnerBlockStateRepo) Get(dbc dbctx.Context, userID, usageKey string) (*types.LearnerBlockState, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == "" || usageKey == "" {
		return nil, nil
	}
	var st types.LearnerBlockState
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND usage_key = ?", userID, usageKey).
		Limit(1).
		Find(&st).Error; err != nil {
		return nil, err
	}
	if st.ID == uuid.Nil {
		return nil, nil
	}
	return &st, nil
}

func (r *learnerBlockStateRepo) Delete(dbc dbctx.Context, userID, usageKey string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == "" || usageKey == "" {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND usage_key = ?", userID, usageKey).
		Delete(&types.LearnerBlockState{})
	return res.RowsAffected, res.Error
}
