// Package itembank implements the course-embedded item-bank block: its
// settings, library sync, per-learner child assignment, validation, reset,
// and OLX import/export.
package itembank

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/contentlib/internal/data/db"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/itembank/blocktypes"
	"github.com/yungbote/contentlib/internal/modules/itembank/selection"
	"github.com/yungbote/contentlib/internal/modules/library/copier"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/gcp"
	"github.com/yungbote/contentlib/internal/platform/locks"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

const DefaultMaxCount = 1

var settingsValidator = validator.New()

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	CourseBlocks contentrepo.CourseBlockRepo
	ItemBanks    contentrepo.ItemBankSettingsRepo
	Selections   contentrepo.LearnerSelectionRepo

	Store      store.Store
	Copier     *copier.Copier
	Selection  *selection.Engine
	BlockTypes *blocktypes.Registry

	// Optional.
	Index   queue.IndexQueue
	Metrics *observability.Metrics
	Exports gcp.ExportStore
}

type Usecases struct {
	deps  UsecasesDeps
	banks *locks.KeyedMutex
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.With("service", "ItemBankService")
	if deps.BlockTypes == nil {
		deps.BlockTypes = blocktypes.Default(nil)
	}
	return Usecases{deps: deps, banks: locks.NewKeyedMutex()}
}

type SourceLibrary struct {
	LibraryKey string `json:"library_key" validate:"required"`
	Version    string `json:"version,omitempty" validate:"omitempty,alphanum"`
}

type SettingsInput struct {
	SourceLibraries        []SourceLibrary `json:"source_libraries" validate:"dive"`
	CapaType               string          `json:"capa_type"`
	Mode                   string          `json:"mode" validate:"omitempty,oneof=random first"`
	MaxCount               *int            `json:"max_count" validate:"omitempty,min=-1"`
	AllowResettingChildren bool            `json:"allow_resetting_children"`
	HasScore               bool            `json:"has_score"`
	Weight                 *float64        `json:"weight" validate:"omitempty,gte=0"`
}

type CreateInput struct {
	ParentUsageKey string        `json:"parent_usage_key" validate:"required"`
	BlockID        string        `json:"block_id"`
	DisplayName    string        `json:"display_name"`
	Settings       SettingsInput `json:"settings"`
}

// SettingsPatch updates only the non-nil fields.
type SettingsPatch struct {
	DisplayName            *string          `json:"display_name"`
	SourceLibraries        *[]SourceLibrary `json:"source_libraries"`
	CapaType               *string          `json:"capa_type" validate:"omitempty,min=1"`
	Mode                   *string          `json:"mode" validate:"omitempty,oneof=random first"`
	MaxCount               *int             `json:"max_count" validate:"omitempty,min=-1"`
	AllowResettingChildren *bool            `json:"allow_resetting_children"`
	HasScore               *bool            `json:"has_score"`
	Weight                 *float64         `json:"weight" validate:"omitempty,gte=0"`
}

// View is the author-facing shape of an item-bank.
type View struct {
	UsageKey               string                   `json:"usage_key"`
	DisplayName            string                   `json:"display_name"`
	SourceLibraries        []keys.LibraryVersionRef `json:"source_libraries"`
	CapaType               string                   `json:"capa_type"`
	Mode                   string                   `json:"mode"`
	MaxCount               int                      `json:"max_count"`
	AllowResettingChildren bool                     `json:"allow_resetting_children"`
	HasScore               bool                     `json:"has_score"`
	Weight                 float64                  `json:"weight"`
	Children               []string                 `json:"children"`
	LastSyncedAt           *time.Time               `json:"last_synced_at,omitempty"`
}

func parseSources(in []SourceLibrary) ([]keys.LibraryVersionRef, error) {
	out := make([]keys.LibraryVersionRef, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		ref, err := keys.NewLibraryVersionRefFromString(s.LibraryKey, s.Version)
		if err != nil {
			return nil, apierr.New(http.StatusBadRequest, "invalid_source_library", err)
		}
		if seen[ref.Library.String()] {
			continue
		}
		seen[ref.Library.String()] = true
		out = append(out, ref)
	}
	return out, nil
}

// Create places a new item-bank under a course block. When sources are
// given, it is synced right away.
func (u Usecases) Create(ctx context.Context, userID string, in CreateInput) (*View, error) {
	if err := settingsValidator.Struct(in); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_itembank", err)
	}
	parentKey, err := keys.ParseUsageKey(in.ParentUsageKey)
	if err != nil || parentKey.IsLibrary() {
		return nil, apierr.New(http.StatusBadRequest, "invalid_parent_usage_key", errs.ErrInvalidArgument)
	}
	blockID := strings.TrimSpace(in.BlockID)
	if blockID == "" {
		blockID = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	usage := parentKey.WithBlock(types.BlockTypeItemBank, blockID)
	if _, err := keys.ParseUsageKey(usage.String()); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_block_id", err)
	}
	sources, err := parseSources(in.Settings.SourceLibraries)
	if err != nil {
		return nil, err
	}
	rawSources, err := keys.MarshalLibraryVersionRefs(sources)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_source_library", err)
	}
	capa := strings.TrimSpace(in.Settings.CapaType)
	if capa == "" {
		capa = types.CapaTypeAny
	}
	maxCount := DefaultMaxCount
	if in.Settings.MaxCount != nil {
		maxCount = *in.Settings.MaxCount
	}
	weight := 1.0
	if in.Settings.Weight != nil {
		weight = *in.Settings.Weight
	}

	var copied *copier.Result
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
		block := &types.CourseBlock{
			CourseKey:      parent.CourseKey,
			UsageKey:       usage.String(),
			BlockType:      types.BlockTypeItemBank,
			BlockID:        blockID,
			ParentUsageKey: parent.UsageKey,
			Position:       pos,
			DisplayName:    strings.TrimSpace(in.DisplayName),
			Settings:       datatypes.JSON([]byte(`{}`)),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := u.deps.CourseBlocks.Create(dbc, []*types.CourseBlock{block}); err != nil {
			return err
		}
		if err := u.deps.ItemBanks.Create(dbc, &types.ItemBankSettings{
			ID:                     uuid.New(),
			UsageKey:               usage.String(),
			SourceLibraries:        datatypes.JSON(rawSources),
			CapaType:               capa,
			Mode:                   selection.ModeOrDefault(in.Settings.Mode),
			MaxCount:               maxCount,
			AllowResettingChildren: in.Settings.AllowResettingChildren,
			HasScore:               in.Settings.HasScore,
			Weight:                 weight,
			CreatedAt:              now,
			UpdatedAt:              now,
		}); err != nil {
			return err
		}
		if len(sources) == 0 {
			return nil
		}
		// The first copy shares the create transaction so a failed copy
		// leaves no item-bank behind.
		copied, err = u.deps.Copier.Copy(dbc, copier.Request{ItemBank: block, Sources: currentVersions(sources), CapaType: capa})
		u.deps.Metrics.ObserveItemBankSync(err)
		if err != nil {
			return u.copyError(usage.String(), err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapInternal("create_itembank_failed", err)
	}
	u.deps.Log.Info("Item-bank created", "usage_key", usage.String(), "user_id", userID, "sources", len(sources))
	u.enqueueUpserts(ctx, usage.String())
	if copied != nil {
		u.enqueueUpserts(ctx, copied.Created...)
	}
	return u.Get(ctx, usage.String())
}

func (u Usecases) Get(ctx context.Context, usageKey string) (*View, error) {
	dbc := dbctx.Context{Ctx: ctx}
	block, settings, err := u.load(dbc, usageKey)
	if err != nil {
		return nil, err
	}
	children, err := u.deps.CourseBlocks.ListChildren(dbc, usageKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_children_failed", err)
	}
	return viewOf(block, settings, children)
}

// UpdateSettings applies a validated patch. Changing the sources or the
// capa filter resyncs the children.
func (u Usecases) UpdateSettings(ctx context.Context, userID, usageKey string, patch SettingsPatch) (*View, error) {
	if err := settingsValidator.Struct(patch); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_settings", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	block, settings, err := u.load(dbc, usageKey)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	resync := false
	if patch.SourceLibraries != nil {
		sources, err := parseSources(*patch.SourceLibraries)
		if err != nil {
			return nil, err
		}
		raw, err := keys.MarshalLibraryVersionRefs(sources)
		if err != nil {
			return nil, apierr.New(http.StatusBadRequest, "invalid_source_library", err)
		}
		updates["source_libraries"] = datatypes.JSON(raw)
		resync = true
	}
	if patch.CapaType != nil && strings.TrimSpace(*patch.CapaType) != settings.CapaType {
		updates["capa_type"] = strings.TrimSpace(*patch.CapaType)
		resync = true
	}
	if patch.Mode != nil {
		updates["mode"] = selection.ModeOrDefault(*patch.Mode)
	}
	if patch.MaxCount != nil {
		updates["max_count"] = *patch.MaxCount
	}
	if patch.AllowResettingChildren != nil {
		updates["allow_resetting_children"] = *patch.AllowResettingChildren
	}
	if patch.HasScore != nil {
		updates["has_score"] = *patch.HasScore
	}
	if patch.Weight != nil {
		updates["weight"] = *patch.Weight
	}

	unlock := u.banks.Lock(usageKey)
	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := dbpkg.AdvisoryXactLock(tx, copier.LockNamespace, usageKey); err != nil {
			return err
		}
		if patch.DisplayName != nil && strings.TrimSpace(*patch.DisplayName) != block.DisplayName {
			if err := u.deps.CourseBlocks.UpdateFields(inner, usageKey, map[string]interface{}{
				"display_name": strings.TrimSpace(*patch.DisplayName),
			}); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return u.deps.ItemBanks.UpdateFields(inner, usageKey, updates)
	})
	unlock()
	if err != nil {
		return nil, wrapInternal("update_settings_failed", err)
	}
	u.enqueueUpserts(ctx, usageKey)

	if resync {
		return u.SyncFromLibraries(ctx, userID, usageKey)
	}
	return u.Get(ctx, usageKey)
}

// SyncFromLibraries recopies every source library at its current version. An
// unresolvable library aborts the sync and leaves the children unchanged.
func (u Usecases) SyncFromLibraries(ctx context.Context, userID, usageKey string) (*View, error) {
	ctx, span := observability.StartSpan(ctx, "itembank.Sync")
	view, err := u.sync(ctx, userID, usageKey)
	observability.EndSpan(span, err)
	return view, err
}

func (u Usecases) sync(ctx context.Context, userID, usageKey string) (*View, error) {
	unlock := u.banks.Lock(usageKey)
	dbc := dbctx.Context{Ctx: ctx}
	block, settings, err := u.load(dbc, usageKey)
	if err != nil {
		unlock()
		return nil, err
	}
	refs, err := keys.ParseLibraryVersionRefs(settings.SourceLibraries)
	if err != nil {
		unlock()
		return nil, apierr.New(http.StatusInternalServerError, "corrupt_source_libraries", err)
	}
	res, err := u.deps.Copier.Copy(dbc, copier.Request{ItemBank: block, Sources: currentVersions(refs), CapaType: settings.CapaType})
	unlock()
	u.deps.Metrics.ObserveItemBankSync(err)
	if err != nil {
		return nil, u.copyError(usageKey, err)
	}
	u.deps.Log.Info("Item-bank synced",
		"usage_key", usageKey,
		"user_id", userID,
		"children", len(res.Children),
		"removed", len(res.Removed),
	)
	if u.deps.Index != nil {
		if err := u.deps.Index.EnqueueUpsert(dbc, res.Created...); err != nil {
			u.deps.Log.Warn("enqueue index upsert failed", "usage_key", usageKey, "error", err)
		}
		if err := u.deps.Index.EnqueueDelete(dbc, res.Removed...); err != nil {
			u.deps.Log.Warn("enqueue index delete failed", "usage_key", usageKey, "error", err)
		}
	}
	return u.Get(ctx, usageKey)
}

// Delete removes the item-bank, its children, its settings, and every
// learner selection. It is terminal.
func (u Usecases) Delete(ctx context.Context, usageKey string) error {
	unlock := u.banks.Lock(usageKey)
	defer unlock()
	var removed []string
	err := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := dbpkg.AdvisoryXactLock(tx, copier.LockNamespace, usageKey); err != nil {
			return err
		}
		block, _, err := u.load(dbc, usageKey)
		if err != nil {
			return err
		}
		below, err := course.Subtree(dbc, u.deps.CourseBlocks, usageKey)
		if err != nil {
			return err
		}
		removed = append([]string{block.UsageKey}, usageKeysOf(below)...)
		if err := u.deps.Selections.DeleteByItemBank(dbc, usageKey); err != nil {
			return err
		}
		if err := u.deps.ItemBanks.Delete(dbc, usageKey); err != nil {
			return err
		}
		return u.deps.CourseBlocks.DeleteByUsageKeys(dbc, removed)
	})
	if err != nil {
		return wrapInternal("delete_itembank_failed", err)
	}
	u.deps.Log.Info("Item-bank deleted", "usage_key", usageKey, "blocks", len(removed))
	if u.deps.Index != nil {
		if err := u.deps.Index.EnqueueDelete(dbctx.Context{Ctx: ctx}, removed...); err != nil {
			u.deps.Log.Warn("enqueue index delete failed", "usage_key", usageKey, "error", err)
		}
	}
	return nil
}

func (u Usecases) load(dbc dbctx.Context, usageKey string) (*types.CourseBlock, *types.ItemBankSettings, error) {
	block, err := u.deps.CourseBlocks.GetByUsageKey(dbc, usageKey)
	if err != nil {
		return nil, nil, apierr.New(http.StatusInternalServerError, "load_itembank_failed", err)
	}
	if block == nil || block.BlockType != types.BlockTypeItemBank {
		return nil, nil, apierr.New(http.StatusNotFound, "itembank_not_found", errs.ErrNotFound)
	}
	settings, err := u.deps.ItemBanks.GetByUsageKey(dbc, usageKey)
	if err != nil {
		return nil, nil, apierr.New(http.StatusInternalServerError, "load_itembank_failed", err)
	}
	if settings == nil {
		return nil, nil, apierr.New(http.StatusNotFound, "itembank_not_found", errs.ErrNotFound)
	}
	return block, settings, nil
}

func viewOf(block *types.CourseBlock, settings *types.ItemBankSettings, children []*types.CourseBlock) (*View, error) {
	refs, err := keys.ParseLibraryVersionRefs(settings.SourceLibraries)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "corrupt_source_libraries", err)
	}
	if refs == nil {
		refs = []keys.LibraryVersionRef{}
	}
	return &View{
		UsageKey:               block.UsageKey,
		DisplayName:            block.DisplayName,
		SourceLibraries:        refs,
		CapaType:               settings.CapaType,
		Mode:                   settings.Mode,
		MaxCount:               settings.MaxCount,
		AllowResettingChildren: settings.AllowResettingChildren,
		HasScore:               settings.HasScore,
		Weight:                 settings.Weight,
		Children:               usageKeysOf(children),
		LastSyncedAt:           settings.LastSyncedAt,
	}, nil
}

func usageKeysOf(blocks []*types.CourseBlock) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.UsageKey)
	}
	return out
}

func (u Usecases) enqueueUpserts(ctx context.Context, usageKeys ...string) {
	if u.deps.Index == nil || len(usageKeys) == 0 {
		return
	}
	if err := u.deps.Index.EnqueueUpsert(dbctx.Context{Ctx: ctx}, usageKeys...); err != nil {
		u.deps.Log.Warn("enqueue index upsert failed", "usage_keys", usageKeys, "error", err)
	}
}

// currentVersions drops pinned versions so each library is copied at its
// current version.
func currentVersions(refs []keys.LibraryVersionRef) []keys.LibraryVersionRef {
	out := make([]keys.LibraryVersionRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, keys.LibraryVersionRef{Library: r.Library})
	}
	return out
}

func (u Usecases) copyError(usageKey string, err error) error {
	var re *copier.ResolveError
	if errors.As(err, &re) {
		u.deps.Log.Warn("item-bank sync aborted; library unresolvable", "usage_key", usageKey, "library", re.LibraryKey)
		return apierr.New(http.StatusUnprocessableEntity, "invalid_source_library", err)
	}
	return apierr.New(http.StatusInternalServerError, "sync_failed", err)
}

func wrapInternal(code string, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apierr.New(http.StatusInternalServerError, code, err)
}
