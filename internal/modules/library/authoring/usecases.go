// Package authoring implements author-side library edits. Every structural
// change writes a new immutable library version; content edits update the
// shared definition in place and also advance the version.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/contentlib/internal/data/db"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

const lockNamespace = "library_write"

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Libraries    contentrepo.LibraryRepo
	Versions     contentrepo.LibraryVersionRepo
	Definitions  contentrepo.DefinitionRepo
	CourseBlocks contentrepo.CourseBlockRepo

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
	deps.Log = deps.Log.With("service", "LibraryAuthoring")
	return Usecases{deps: deps}
}

type CreateLibraryInput struct {
	Org         string `json:"org"`
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
}

type AddBlockInput struct {
	// ParentID is empty for a top-level block.
	ParentID    string         `json:"parent_id"`
	BlockType   string         `json:"block_type"`
	BlockID     string         `json:"block_id"`
	DisplayName string         `json:"display_name"`
	Settings    map[string]any `json:"settings"`
	Data        string         `json:"data"`
}

type UpdateBlockInput struct {
	DisplayName *string        `json:"display_name"`
	Settings    map[string]any `json:"settings"`
	Data        *string        `json:"data"`
}

type BlockResult struct {
	Library  *types.Library `json:"library"`
	BlockID  string         `json:"block_id"`
	UsageKey string         `json:"usage_key"`
}

// NewVersionID returns an opaque 24-hex version identifier.
func NewVersionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (u Usecases) CreateLibrary(ctx context.Context, in CreateLibraryInput) (*types.Library, error) {
	key := keys.LibraryKey{Org: strings.TrimSpace(in.Org), Library: strings.TrimSpace(in.Slug)}
	if _, err := keys.ParseLibraryKey(key.String()); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_library_key", err)
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = key.Library
	}

	var created *types.Library
	err := u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := dbpkg.AdvisoryXactLock(tx, lockNamespace, key.String()); err != nil {
			return err
		}
		existing, err := u.deps.Libraries.GetByKey(dbc, key.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.New(http.StatusConflict, "library_exists", errs.ErrConflict)
		}
		now := time.Now()
		version := NewVersionID()
		lib := &types.Library{
			ID:             uuid.New(),
			LibraryKey:     key.String(),
			Org:            key.Org,
			Slug:           key.Library,
			DisplayName:    display,
			CurrentVersion: version,
			VersionSeq:     1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := u.deps.Libraries.Create(dbc, lib); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return apierr.New(http.StatusConflict, "library_exists", errs.ErrConflict)
			}
			return err
		}
		raw, err := store.EncodeStructure(&types.LibraryStructure{DisplayName: display})
		if err != nil {
			return err
		}
		if err := u.deps.Versions.Create(dbc, &types.LibraryVersion{
			LibraryID: lib.ID,
			Version:   version,
			Seq:       1,
			Structure: datatypes.JSON(raw),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		created = lib
		return nil
	})
	if err != nil {
		return nil, wrapInternal("create_library_failed", err)
	}
	u.deps.Log.Info("Library created", "library_key", created.LibraryKey, "version", created.CurrentVersion)
	return created, nil
}

func (u Usecases) AddBlock(ctx context.Context, libraryKey string, in AddBlockInput) (*BlockResult, error) {
	blockType := strings.TrimSpace(in.BlockType)
	if blockType == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_block_type", errs.ErrInvalidArgument)
	}
	blockID := strings.TrimSpace(in.BlockID)
	if blockID == "" {
		blockID = blockType + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	var (
		result    *BlockResult
		indexKeys []string
	)
	err := u.mutate(ctx, libraryKey, func(dbc dbctx.Context, lib *types.Library, key keys.LibraryKey, s *types.LibraryStructure) error {
		usage := key.MakeUsageKey(blockType, blockID)
		if _, err := keys.ParseUsageKey(usage.String()); err != nil {
			return apierr.New(http.StatusBadRequest, "invalid_block_id", err)
		}
		if _, exists := s.Blocks[blockID]; exists {
			return apierr.New(http.StatusConflict, "block_exists", errs.ErrConflict)
		}
		parent := strings.TrimSpace(in.ParentID)
		if parent != "" && s.Blocks[parent] == nil {
			return apierr.New(http.StatusNotFound, "parent_not_found", errs.ErrNotFound)
		}

		now := time.Now()
		def := &types.Definition{
			ID:        uuid.New(),
			BlockType: blockType,
			Data:      in.Data,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := u.deps.Definitions.Create(dbc, def); err != nil {
			return err
		}
		s.Blocks[blockID] = &types.StructureBlock{
			BlockType:    blockType,
			DefinitionID: def.ID,
			DisplayName:  strings.TrimSpace(in.DisplayName),
			Settings:     in.Settings,
		}
		if parent == "" {
			s.Children = append(s.Children, blockID)
		} else {
			s.Blocks[parent].Children = append(s.Blocks[parent].Children, blockID)
		}
		result = &BlockResult{Library: lib, BlockID: blockID, UsageKey: usage.String()}
		indexKeys = []string{usage.String()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, u.enqueueUpserts(ctx, indexKeys)
}

func (u Usecases) UpdateBlock(ctx context.Context, libraryKey, blockID string, in UpdateBlockInput) (*BlockResult, error) {
	var (
		result    *BlockResult
		indexKeys []string
	)
	err := u.mutate(ctx, libraryKey, func(dbc dbctx.Context, lib *types.Library, key keys.LibraryKey, s *types.LibraryStructure) error {
		sb := s.Blocks[blockID]
		if sb == nil {
			return apierr.New(http.StatusNotFound, "block_not_found", errs.ErrNotFound)
		}
		usage := key.MakeUsageKey(sb.BlockType, blockID).String()
		indexKeys = append(indexKeys, usage)

		renamed := false
		if in.DisplayName != nil && strings.TrimSpace(*in.DisplayName) != sb.DisplayName {
			sb.DisplayName = strings.TrimSpace(*in.DisplayName)
			renamed = true
		}
		if in.Settings != nil {
			sb.Settings = in.Settings
		}
		if in.Data != nil {
			if err := u.deps.Definitions.UpdateData(dbc, sb.DefinitionID, *in.Data); err != nil {
				return err
			}
			copies, err := u.copiesOf(dbc, usage)
			if err != nil {
				return err
			}
			indexKeys = append(indexKeys, copies...)
		}
		if renamed {
			// Descendant breadcrumbs embed this name.
			for _, d := range descendantIDs(s, blockID) {
				if child := s.Blocks[d]; child != nil {
					indexKeys = append(indexKeys, key.MakeUsageKey(child.BlockType, d).String())
				}
			}
		}
		result = &BlockResult{Library: lib, BlockID: blockID, UsageKey: usage}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, u.enqueueUpserts(ctx, indexKeys)
}

func (u Usecases) DeleteBlock(ctx context.Context, libraryKey, blockID string) (*types.Library, error) {
	var (
		updated *types.Library
		removed []string
	)
	err := u.mutate(ctx, libraryKey, func(dbc dbctx.Context, lib *types.Library, key keys.LibraryKey, s *types.LibraryStructure) error {
		sb := s.Blocks[blockID]
		if sb == nil {
			return apierr.New(http.StatusNotFound, "block_not_found", errs.ErrNotFound)
		}
		doomed := append([]string{blockID}, descendantIDs(s, blockID)...)
		if parent := s.ParentOf(blockID); parent != "" {
			s.Blocks[parent].Children = without(s.Blocks[parent].Children, blockID)
		} else {
			s.Children = without(s.Children, blockID)
		}
		for _, id := range doomed {
			if b := s.Blocks[id]; b != nil {
				removed = append(removed, key.MakeUsageKey(b.BlockType, id).String())
			}
			delete(s.Blocks, id)
		}
		updated = lib
		return nil
	})
	if err != nil {
		return nil, err
	}
	if u.deps.Index != nil && len(removed) > 0 {
		if err := u.deps.Index.EnqueueDelete(dbctx.Context{Ctx: ctx}, removed...); err != nil {
			u.deps.Log.Warn("enqueue index delete failed", "library_key", libraryKey, "error", err)
		}
	}
	return updated, nil
}

type mutateFunc func(dbc dbctx.Context, lib *types.Library, key keys.LibraryKey, s *types.LibraryStructure) error

// mutate loads the current structure under the library write lock, applies
// fn to a clone, and persists the clone as the next version.
func (u Usecases) mutate(ctx context.Context, libraryKey string, fn mutateFunc) error {
	key, err := keys.ParseLibraryKey(libraryKey)
	if err != nil {
		return apierr.New(http.StatusBadRequest, "invalid_library_key", err)
	}
	key = key.Versionless()

	err = u.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := dbpkg.AdvisoryXactLock(tx, lockNamespace, key.String()); err != nil {
			return err
		}
		lib, err := u.deps.Libraries.GetByKey(dbc, key.String())
		if err != nil {
			return err
		}
		if lib == nil {
			return apierr.New(http.StatusNotFound, "library_not_found", errs.ErrNotFound)
		}
		cur, err := u.deps.Versions.Get(dbc, lib.ID, lib.CurrentVersion)
		if err != nil {
			return err
		}
		var structure *types.LibraryStructure
		if cur != nil {
			if structure, err = store.DecodeStructure(cur.Structure); err != nil {
				return fmt.Errorf("decode current version: %w", err)
			}
		}
		next := structure.Clone()
		if next.DisplayName == "" {
			next.DisplayName = lib.DisplayName
		}
		if err := fn(dbc, lib, key, next); err != nil {
			return err
		}

		raw, err := store.EncodeStructure(next)
		if err != nil {
			return err
		}
		version := NewVersionID()
		seq := lib.VersionSeq + 1
		if err := u.deps.Versions.Create(dbc, &types.LibraryVersion{
			LibraryID: lib.ID,
			Version:   version,
			Seq:       seq,
			Structure: datatypes.JSON(raw),
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		if err := u.deps.Libraries.AdvanceVersion(dbc, lib.ID, version, seq); err != nil {
			return err
		}
		lib.CurrentVersion = version
		lib.VersionSeq = seq
		return nil
	})
	if err != nil {
		return wrapInternal("library_update_failed", err)
	}
	return nil
}

func (u Usecases) copiesOf(dbc dbctx.Context, libraryUsageKey string) ([]string, error) {
	if u.deps.CourseBlocks == nil {
		return nil, nil
	}
	rows, err := u.deps.CourseBlocks.ListByCopiedFrom(dbc, []string{libraryUsageKey})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.UsageKey)
	}
	return out, nil
}

func (u Usecases) enqueueUpserts(ctx context.Context, usageKeys []string) error {
	if u.deps.Index == nil || len(usageKeys) == 0 {
		return nil
	}
	if err := u.deps.Index.EnqueueUpsert(dbctx.Context{Ctx: ctx}, usageKeys...); err != nil {
		// The edit is committed; a rebuild repairs the index.
		u.deps.Log.Warn("enqueue index upsert failed", "usage_keys", usageKeys, "error", err)
	}
	return nil
}

func descendantIDs(s *types.LibraryStructure, id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(cur string) {
		b := s.Blocks[cur]
		if b == nil {
			return
		}
		for _, c := range b.Children {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			walk(c)
		}
	}
	walk(id)
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func wrapInternal(code string, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apierr.New(http.StatusInternalServerError, code, err)
}
