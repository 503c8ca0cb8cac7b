// Package copier materializes library content under an item-bank. Copies
// share their source definition and get ids derived from the item-bank, the
// library, and the source block, so re-syncs reproduce the same ids.
package copier

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "github.com/yungbote/contentlib/internal/data/db"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

// LockNamespace is the advisory lock namespace for item-bank writes.
const LockNamespace = "itembank_write"

const destIDLen = 20

// ResolveError reports a source library (or pinned version) that does not
// exist.
type ResolveError struct {
	LibraryKey string
	Version    string
}

func (e *ResolveError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("library %s at version %s not found", e.LibraryKey, e.Version)
	}
	return fmt.Sprintf("library %s not found", e.LibraryKey)
}

// DestinationID derives the block id of a copy from the item-bank's block id.
// Nested copies use the item-bank id too, so a block keeps its id when it is
// moved under another parent in the library.
func DestinationID(itemBankID string, library keys.LibraryKey, sourceBlockID string) string {
	sum := sha1.Sum([]byte(itemBankID + ":" + library.Versionless().String() + ":" + sourceBlockID))
	return hex.EncodeToString(sum[:])[:destIDLen]
}

type Request struct {
	ItemBank *types.CourseBlock
	Sources  []keys.LibraryVersionRef
	CapaType string
}

type Result struct {
	// Children are the new top-level copies in order.
	Children []string
	// Created is every copied block, top-level and nested.
	Created []string
	// Removed are previous copies that no longer exist.
	Removed []string
	// Sources records the version each library was copied at.
	Sources []keys.LibraryVersionRef
}

type Copier struct {
	db           *gorm.DB
	log          *logger.Logger
	store        store.Store
	courseBlocks contentrepo.CourseBlockRepo
	itemBanks    contentrepo.ItemBankSettingsRepo
}

func New(db *gorm.DB, baseLog *logger.Logger, st store.Store, courseBlocks contentrepo.CourseBlockRepo, itemBanks contentrepo.ItemBankSettingsRepo) *Copier {
	return &Copier{
		db:           db,
		log:          baseLog.With("service", "BlockCopier"),
		store:        st,
		courseBlocks: courseBlocks,
		itemBanks:    itemBanks,
	}
}

// Copy replaces the item-bank's children with copies of the filtered library
// content and records the versions used. It runs in dbc.Tx when set, else in
// its own transaction; any error leaves the previous children in place.
func (c *Copier) Copy(dbc dbctx.Context, req Request) (*Result, error) {
	if req.ItemBank == nil {
		return nil, fmt.Errorf("copy: missing item-bank")
	}
	ctx, span := observability.StartSpan(dbc.Ctx, "copier.Copy")
	var res *Result
	var err error
	if dbc.Tx != nil {
		res, err = c.copyTx(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, req)
	} else {
		err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var inner error
			res, inner = c.copyTx(dbctx.Context{Ctx: ctx, Tx: tx}, req)
			return inner
		})
	}
	observability.EndSpan(span, err)
	return res, err
}

func (c *Copier) copyTx(dbc dbctx.Context, req Request) (*Result, error) {
	bank := req.ItemBank
	if err := dbpkg.AdvisoryXactLock(dbc.Tx, LockNamespace, bank.UsageKey); err != nil {
		return nil, fmt.Errorf("lock item-bank: %w", err)
	}
	bankKey, err := keys.ParseUsageKey(bank.UsageKey)
	if err != nil {
		return nil, err
	}

	libs := make([]*store.Library, 0, len(req.Sources))
	for _, ref := range req.Sources {
		lib, err := c.store.GetLibrary(dbc, ref.Key())
		if err != nil {
			return nil, err
		}
		if lib == nil {
			return nil, &ResolveError{LibraryKey: ref.Library.String(), Version: ref.Version}
		}
		libs = append(libs, lib)
	}

	previous, err := course.Subtree(dbc, c.courseBlocks, bank.UsageKey)
	if err != nil {
		return nil, fmt.Errorf("load previous children: %w", err)
	}
	prevKeys := make([]string, 0, len(previous))
	for _, p := range previous {
		prevKeys = append(prevKeys, p.UsageKey)
	}
	if err := c.courseBlocks.DeleteByUsageKeys(dbc, prevKeys); err != nil {
		return nil, fmt.Errorf("delete previous children: %w", err)
	}

	now := time.Now()
	res := &Result{}
	var rows []*types.CourseBlock
	seen := map[string]bool{}
	for _, lib := range libs {
		children, err := c.store.IterFilteredChildren(dbc, lib, req.CapaType)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			destID := DestinationID(bankKey.BlockID, lib.Key, child.ID)
			if seen[destID] {
				continue
			}
			usage := bankKey.WithBlock(child.Block.BlockType, destID).String()
			copied, err := c.copyBlock(dbc, lib, child.Block, bank, bankKey.BlockID, bank.UsageKey, usage, destID, len(res.Children), now, seen)
			if err != nil {
				return nil, err
			}
			rows = append(rows, copied...)
			res.Children = append(res.Children, usage)
		}
		res.Sources = append(res.Sources, keys.LibraryVersionRef{Library: lib.Key.Versionless(), Version: lib.Version})
	}
	if _, err := c.courseBlocks.Create(dbc, rows); err != nil {
		return nil, fmt.Errorf("create copies: %w", err)
	}
	for _, r := range rows {
		res.Created = append(res.Created, r.UsageKey)
	}
	created := map[string]bool{}
	for _, k := range res.Created {
		created[k] = true
	}
	for _, k := range prevKeys {
		if !created[k] {
			res.Removed = append(res.Removed, k)
		}
	}

	raw, err := keys.MarshalLibraryVersionRefs(res.Sources)
	if err != nil {
		return nil, err
	}
	if err := c.itemBanks.UpdateFields(dbc, bank.UsageKey, map[string]interface{}{
		"source_libraries": datatypes.JSON(raw),
		"last_synced_at":   now,
	}); err != nil {
		return nil, fmt.Errorf("record source versions: %w", err)
	}
	c.log.Info("Item-bank children copied",
		"item_bank", bank.UsageKey,
		"children", len(res.Children),
		"blocks", len(res.Created),
		"removed", len(res.Removed),
	)
	return res, nil
}

// copyBlock builds the row for src and, recursively, for its descendants.
// Nested blocks are not filtered.
func (c *Copier) copyBlock(
	dbc dbctx.Context,
	lib *store.Library,
	src *store.Block,
	bank *types.CourseBlock,
	bankID, parentUsageKey, usage, destID string,
	position int,
	now time.Time,
	seen map[string]bool,
) ([]*types.CourseBlock, error) {
	seen[destID] = true
	settings, err := course.EncodeSettings(src.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings of %s: %w", src.UsageKey, err)
	}
	defID := src.DefinitionID
	row := &types.CourseBlock{
		CourseKey:          bank.CourseKey,
		UsageKey:           usage,
		BlockType:          src.BlockType,
		BlockID:            destID,
		ParentUsageKey:     parentUsageKey,
		Position:           position,
		DefinitionID:       &defID,
		DisplayName:        src.DisplayName,
		Settings:           settings,
		CopiedFromLibrary:  lib.Key.Versionless().String(),
		CopiedFromUsageKey: src.UsageKey.String(),
		CopiedFromVersion:  lib.Version,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	out := []*types.CourseBlock{row}
	if len(src.Children) == 0 {
		return out, nil
	}
	parentKey, err := keys.ParseUsageKey(usage)
	if err != nil {
		return nil, err
	}
	for i, childID := range src.Children {
		child, err := c.store.Block(dbc, lib, childID)
		if err != nil {
			return nil, err
		}
		if child == nil {
			c.log.Warn("library child missing; skipped", "library", lib.Key.String(), "block_id", childID)
			continue
		}
		childDest := DestinationID(bankID, lib.Key, childID)
		if seen[childDest] {
			continue
		}
		childUsage := parentKey.WithBlock(child.BlockType, childDest).String()
		rows, err := c.copyBlock(dbc, lib, child, bank, bankID, usage, childUsage, childDest, i, now, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}
