// Package course owns course trees: courses, their root block, and the
// blocks authors place under it.
package course

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/contentlib/internal/data/db"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

// RootBlockID is the block id of every course's root block.
const RootBlockID = "course"

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Courses      contentrepo.CourseRepo
	CourseBlocks contentrepo.CourseBlockRepo
	Definitions  contentrepo.DefinitionRepo
	ItemBanks    contentrepo.ItemBankSettingsRepo
	Selections   contentrepo.LearnerSelectionRepo

	// Optional: nil skips search-index maintenance.
	Index queue.IndexQueue
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.With("service", "CourseService")
	return Usecases{deps: deps}
}

type CreateCourseInput struct {
	Org         string `json:"org"`
	Course      string `json:"course"`
	Run         string `json:"run"`
	DisplayName string `json:"display_name"`
}

type CreateBlockInput struct {
	ParentUsageKey string         `json:"parent_usage_key"`
	BlockType      string         `json:"block_type"`
	BlockID        string         `json:"block_id"`
	DisplayName    string         `json:"display_name"`
	Settings       map[string]any `json:"settings"`
	Data           string         `json:"data"`
}

type UpdateBlockInput struct {
	DisplayName *string        `json:"display_name"`
	Settings    map[string]any `json:"settings"`
	Data        *string        `json:"data"`
}

// RootUsageKey returns the usage key of a course's root block.
func RootUsageKey(courseKey keys.CourseKey) string {
	return courseKey.MakeUsageKey(types.BlockTypeCourse, RootBlockID).String()
}

func (u Usecases) CreateCourse(ctx context.Context, in CreateCourseInput) (*types.Course, error) {
	key := keys.CourseKey{Org: strings.TrimSpace(in.Org), Course: strings.TrimSpace(in.Course), Run: strings.TrimSpace(in.Run)}
	if _, err := keys.ParseCourseKey(key.String()); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_course_key", err)
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = key.Course
	}
	now := time.Now()
	c := &types.Course{
		ID:          uuid.New(),
		CourseKey:   key.String(),
		Org:         key.Org,
		DisplayName: display,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	root := &types.CourseBlock{
		CourseKey:   key.String(),
		UsageKey:    RootUsageKey(key),
		BlockType:   types.BlockTypeCourse,
		BlockID:     RootBlockID,
		DisplayName: display,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := u.deps.Courses.GetByKey(dbc, c.CourseKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.New(http.StatusConflict, "course_exists", errs.ErrConflict)
		}
		if err := u.deps.Courses.Create(dbc, c); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return apierr.New(http.StatusConflict, "course_exists", errs.ErrConflict)
			}
			return err
		}
		_, err = u.deps.CourseBlocks.Create(dbc, []*types.CourseBlock{root})
		return err
	})
	if err != nil {
		return nil, wrapInternal("create_course_failed", err)
	}
	u.enqueueUpserts(ctx, root.UsageKey)
	return c, nil
}

// CreateBlock places a new authored block under an existing course block.
func (u Usecases) CreateBlock(ctx context.Context, in CreateBlockInput) (*types.CourseBlock, error) {
	parentKey, err := keys.ParseUsageKey(in.ParentUsageKey)
	if err != nil || parentKey.IsLibrary() {
		return nil, apierr.New(http.StatusBadRequest, "invalid_parent_usage_key", errs.ErrInvalidArgument)
	}
	blockType := strings.TrimSpace(in.BlockType)
	if blockType == "" || blockType == types.BlockTypeCourse {
		return nil, apierr.New(http.StatusBadRequest, "invalid_block_type", errs.ErrInvalidArgument)
	}
	blockID := strings.TrimSpace(in.BlockID)
	if blockID == "" {
		blockID = blockType + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	usage := parentKey.WithBlock(blockType, blockID)
	if _, err := keys.ParseUsageKey(usage.String()); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_block_id", err)
	}
	settings, err := EncodeSettings(in.Settings)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_settings", err)
	}

	var created *types.CourseBlock
	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		parent, err := u.deps.CourseBlocks.GetByUsageKey(dbc, in.ParentUsageKey)
		if err != nil {
			return err
		}
		if parent == nil {
			return apierr.New(http.StatusNotFound, "parent_not_found", errs.ErrNotFound)
		}
		if parent.BlockType == types.BlockTypeItemBank {
			// Item-bank children are synthesized from libraries.
			return apierr.New(http.StatusConflict, "itembank_children_are_managed", errs.ErrConflict)
		}
		existing, err := u.deps.CourseBlocks.GetByUsageKey(dbc, usage.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.New(http.StatusConflict, "block_exists", errs.ErrConflict)
		}
		pos, err := u.deps.CourseBlocks.NextPosition(dbc, parent.UsageKey)
		if err != nil {
			return err
		}
		now := time.Now()
		def := &types.Definition{ID: uuid.New(), BlockType: blockType, Data: in.Data, CreatedAt: now, UpdatedAt: now}
		if err := u.deps.Definitions.Create(dbc, def); err != nil {
			return err
		}
		b := &types.CourseBlock{
			CourseKey:      parent.CourseKey,
			UsageKey:       usage.String(),
			BlockType:      blockType,
			BlockID:        blockID,
			ParentUsageKey: parent.UsageKey,
			Position:       pos,
			DefinitionID:   &def.ID,
			DisplayName:    strings.TrimSpace(in.DisplayName),
			Settings:       settings,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := u.deps.CourseBlocks.Create(dbc, []*types.CourseBlock{b}); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, wrapInternal("create_block_failed", err)
	}
	u.enqueueUpserts(ctx, created.UsageKey)
	return created, nil
}

func (u Usecases) UpdateBlock(ctx context.Context, usageKey string, in UpdateBlockInput) (*types.CourseBlock, error) {
	dbc := dbctx.Context{Ctx: ctx}
	b, err := u.deps.CourseBlocks.GetByUsageKey(dbc, usageKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_block_failed", err)
	}
	if b == nil {
		return nil, apierr.New(http.StatusNotFound, "block_not_found", errs.ErrNotFound)
	}
	if in.Data != nil && b.CopiedFromUsageKey != "" {
		// The definition is shared with the library; edit it there.
		return nil, apierr.New(http.StatusConflict, "shared_definition", errs.ErrConflict)
	}

	updates := map[string]interface{}{}
	renamed := false
	if in.DisplayName != nil && strings.TrimSpace(*in.DisplayName) != b.DisplayName {
		updates["display_name"] = strings.TrimSpace(*in.DisplayName)
		renamed = true
	}
	if in.Settings != nil {
		raw, err := EncodeSettings(in.Settings)
		if err != nil {
			return nil, apierr.New(http.StatusBadRequest, "invalid_settings", err)
		}
		updates["settings"] = raw
	}
	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if in.Data != nil && b.DefinitionID != nil {
			if err := u.deps.Definitions.UpdateData(inner, *b.DefinitionID, *in.Data); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return u.deps.CourseBlocks.UpdateFields(inner, usageKey, updates)
	})
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "update_block_failed", err)
	}

	touched := []string{usageKey}
	if renamed {
		below, err := Subtree(dbc, u.deps.CourseBlocks, usageKey)
		if err != nil {
			u.deps.Log.Warn("load subtree for reindex failed", "usage_key", usageKey, "error", err)
		}
		touched = append(touched, usageKeysOf(below)...)
	}
	u.enqueueUpserts(ctx, touched...)
	return u.deps.CourseBlocks.GetByUsageKey(dbc, usageKey)
}

// DeleteBlock removes a block and its subtree, including item-bank settings
// and learner selections of any item-bank inside it.
func (u Usecases) DeleteBlock(ctx context.Context, usageKey string) error {
	var removed []string
	err := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		b, err := u.deps.CourseBlocks.GetByUsageKey(dbc, usageKey)
		if err != nil {
			return err
		}
		if b == nil {
			return apierr.New(http.StatusNotFound, "block_not_found", errs.ErrNotFound)
		}
		if b.BlockType == types.BlockTypeCourse {
			return apierr.New(http.StatusBadRequest, "cannot_delete_root", errs.ErrInvalidArgument)
		}
		below, err := Subtree(dbc, u.deps.CourseBlocks, usageKey)
		if err != nil {
			return err
		}
		all := append([]*types.CourseBlock{b}, below...)
		for _, blk := range all {
			if blk.BlockType != types.BlockTypeItemBank {
				continue
			}
			if u.deps.ItemBanks != nil {
				if err := u.deps.ItemBanks.Delete(dbc, blk.UsageKey); err != nil {
					return err
				}
			}
			if u.deps.Selections != nil {
				if err := u.deps.Selections.DeleteByItemBank(dbc, blk.UsageKey); err != nil {
					return err
				}
			}
		}
		removed = usageKeysOf(all)
		return u.deps.CourseBlocks.DeleteByUsageKeys(dbc, removed)
	})
	if err != nil {
		return wrapInternal("delete_block_failed", err)
	}
	if u.deps.Index != nil {
		if err := u.deps.Index.EnqueueDelete(dbctx.Context{Ctx: ctx}, removed...); err != nil {
			u.deps.Log.Warn("enqueue index delete failed", "usage_key", usageKey, "error", err)
		}
	}
	return nil
}

func (u Usecases) GetBlock(ctx context.Context, usageKey string) (*types.CourseBlock, error) {
	b, err := u.deps.CourseBlocks.GetByUsageKey(dbctx.Context{Ctx: ctx}, usageKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_block_failed", err)
	}
	if b == nil {
		return nil, apierr.New(http.StatusNotFound, "block_not_found", errs.ErrNotFound)
	}
	return b, nil
}

func (u Usecases) ListBlocks(ctx context.Context, courseKey string) ([]*types.CourseBlock, error) {
	rows, err := u.deps.CourseBlocks.ListByCourse(dbctx.Context{Ctx: ctx}, courseKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "list_blocks_failed", err)
	}
	return rows, nil
}

func (u Usecases) enqueueUpserts(ctx context.Context, usageKeys ...string) {
	if u.deps.Index == nil || len(usageKeys) == 0 {
		return
	}
	if err := u.deps.Index.EnqueueUpsert(dbctx.Context{Ctx: ctx}, usageKeys...); err != nil {
		u.deps.Log.Warn("enqueue index upsert failed", "usage_keys", usageKeys, "error", err)
	}
}

func wrapInternal(code string, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apierr.New(http.StatusInternalServerError, code, err)
}
