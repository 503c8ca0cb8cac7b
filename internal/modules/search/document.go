package search

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	accessrepo "github.com/yungbote/contentlib/internal/data/repos/access"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/modules/tagging"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/markup"
)

const (
	DocTypeCourseBlock  = "course_block"
	DocTypeLibraryBlock = "library_block"

	// excerptLen caps the plain-text content stored per document.
	excerptLen = 5000
)

// DocumentID turns a usage key into a valid index document id: the key's
// ASCII letters and digits, a dash, and 7 hex chars of its sha1.
func DocumentID(usageKey string) string {
	var b strings.Builder
	for _, r := range usageKey {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	sum := sha1.Sum([]byte(usageKey))
	return b.String() + "-" + hex.EncodeToString(sum[:])[:7]
}

type Breadcrumb struct {
	DisplayName string `json:"display_name"`
}

type Content struct {
	ProblemTypes []string
	CapaContent  string
	HTMLContent  string
}

// Document is the projection of one block into the search index.
type Document struct {
	ID          string
	Type        string
	UsageKey    string
	BlockID     string
	DisplayName string
	BlockType   string
	ContextKey  string
	Org         string
	AccessID    int64
	Breadcrumbs []Breadcrumb
	Content     Content
	Tags        tagging.Facets
}

// Map renders the document in the index's field layout.
func (d *Document) Map() map[string]any {
	crumbs := make([]map[string]any, 0, len(d.Breadcrumbs))
	for _, c := range d.Breadcrumbs {
		crumbs = append(crumbs, map[string]any{"display_name": c.DisplayName})
	}
	content := map[string]any{}
	if len(d.Content.ProblemTypes) > 0 {
		content["problem_types"] = d.Content.ProblemTypes
	}
	if d.Content.CapaContent != "" {
		content["capa_content"] = d.Content.CapaContent
	}
	if d.Content.HTMLContent != "" {
		content["html_content"] = d.Content.HTMLContent
	}
	return map[string]any{
		"id":           d.ID,
		"type":         d.Type,
		"usage_key":    d.UsageKey,
		"block_id":     d.BlockID,
		"display_name": d.DisplayName,
		"block_type":   d.BlockType,
		"context_key":  d.ContextKey,
		"org":          d.Org,
		"access_id":    d.AccessID,
		"breadcrumbs":  crumbs,
		"content":      content,
		"tags":         d.Tags.Document(),
	}
}

// TagsPatch is the partial document used for a tags-only update.
func TagsPatch(usageKey string, facets tagging.Facets) map[string]any {
	return map[string]any{"id": DocumentID(usageKey), "tags": facets.Document()}
}

func contentOf(blockType, data string) Content {
	switch blockType {
	case types.BlockTypeProblem:
		return Content{ProblemTypes: markup.ProblemTypes(data), CapaContent: markup.PlainText(data, excerptLen)}
	case types.BlockTypeHTML:
		return Content{HTMLContent: markup.PlainText(data, excerptLen)}
	}
	return Content{}
}

// FacetSource supplies tag facets; tagging.Usecases implements it.
type FacetSource interface {
	Facets(dbc dbctx.Context, objectKeys []string) (map[string]tagging.Facets, error)
}

// Builder loads blocks from the block store and projects them.
type Builder struct {
	log          *logger.Logger
	store        store.Store
	courses      contentrepo.CourseRepo
	courseBlocks contentrepo.CourseBlockRepo
	defs         contentrepo.DefinitionRepo
	access       accessrepo.SearchAccessRepo
	tags         FacetSource
}

func NewBuilder(baseLog *logger.Logger, st store.Store, courses contentrepo.CourseRepo, courseBlocks contentrepo.CourseBlockRepo, defs contentrepo.DefinitionRepo, access accessrepo.SearchAccessRepo, tags FacetSource) *Builder {
	return &Builder{
		log:          baseLog.With("service", "SearchDocumentBuilder"),
		store:        st,
		courses:      courses,
		courseBlocks: courseBlocks,
		defs:         defs,
		access:       access,
		tags:         tags,
	}
}

// ContextDocuments builds a document for every block of a course or library.
// Blocks that fail to load are logged and skipped.
func (b *Builder) ContextDocuments(dbc dbctx.Context, contextKey string) ([]*Document, error) {
	if strings.HasPrefix(contextKey, keys.LibraryPrefix+":") {
		lk, err := keys.ParseLibraryKey(contextKey)
		if err != nil {
			return nil, err
		}
		return b.libraryDocuments(dbc, lk.Versionless(), nil)
	}
	ck, err := keys.ParseCourseKey(contextKey)
	if err != nil {
		return nil, err
	}
	blocks, err := b.courseBlocks.ListByCourse(dbc, ck.String())
	if err != nil {
		return nil, fmt.Errorf("list course blocks %s: %w", ck, err)
	}
	return b.courseDocuments(dbc, ck, blocks, blocks)
}

// BlockDocuments builds the document of usageKey and of every block below it.
// Descendants are included because breadcrumbs embed ancestor names. A
// missing block yields no documents.
func (b *Builder) BlockDocuments(dbc dbctx.Context, usageKey string) ([]*Document, error) {
	uk, err := keys.ParseUsageKey(usageKey)
	if err != nil {
		return nil, err
	}
	if uk.IsLibrary() {
		return b.libraryDocuments(dbc, uk.LibraryKey(), &uk.BlockID)
	}
	block, err := b.courseBlocks.GetByUsageKey(dbc, usageKey)
	if err != nil {
		return nil, fmt.Errorf("load block %s: %w", usageKey, err)
	}
	if block == nil {
		return nil, nil
	}
	ancestors, err := course.Ancestors(dbc, b.courseBlocks, block)
	if err != nil {
		return nil, fmt.Errorf("load ancestors of %s: %w", usageKey, err)
	}
	below, err := course.Subtree(dbc, b.courseBlocks, usageKey)
	if err != nil {
		return nil, fmt.Errorf("load subtree of %s: %w", usageKey, err)
	}
	targets := append([]*types.CourseBlock{block}, below...)
	known := append(append([]*types.CourseBlock{}, ancestors...), targets...)
	return b.courseDocuments(dbc, uk.CourseKey(), targets, known)
}

// courseDocuments projects targets; known must contain every ancestor of
// every target.
func (b *Builder) courseDocuments(dbc dbctx.Context, ck keys.CourseKey, targets, known []*types.CourseBlock) ([]*Document, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	accessID, err := b.accessID(dbc, ck.String())
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*types.CourseBlock, len(known))
	for _, blk := range known {
		byKey[blk.UsageKey] = blk
	}
	var defIDs []uuid.UUID
	for _, blk := range targets {
		if blk.DefinitionID != nil && *blk.DefinitionID != uuid.Nil {
			defIDs = append(defIDs, *blk.DefinitionID)
		}
	}
	defs, err := b.defs.GetByIDs(dbc, defIDs)
	if err != nil {
		return nil, fmt.Errorf("load definitions for %s: %w", ck, err)
	}
	facets, err := b.facets(dbc, courseKeysOf(targets))
	if err != nil {
		return nil, err
	}

	out := make([]*Document, 0, len(targets))
	for _, blk := range targets {
		var crumbs []Breadcrumb
		parent := blk.ParentUsageKey
		for i := 0; parent != "" && i < 64; i++ {
			p := byKey[parent]
			if p == nil {
				break
			}
			crumbs = append(crumbs, Breadcrumb{DisplayName: titleOf(p.DisplayName, p.BlockID)})
			parent = p.ParentUsageKey
		}
		reverse(crumbs)
		doc := &Document{
			ID:          DocumentID(blk.UsageKey),
			Type:        DocTypeCourseBlock,
			UsageKey:    blk.UsageKey,
			BlockID:     blk.BlockID,
			DisplayName: titleOf(blk.DisplayName, blk.BlockID),
			BlockType:   blk.BlockType,
			ContextKey:  ck.String(),
			Org:         ck.Org,
			AccessID:    accessID,
			Breadcrumbs: crumbs,
			Tags:        facets[blk.UsageKey],
		}
		if blk.DefinitionID != nil {
			if def := defs[*blk.DefinitionID]; def != nil {
				doc.Content = contentOf(blk.BlockType, def.Data)
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

// libraryDocuments projects a library at its current version; only is the
// block id to restrict to (with its descendants), or nil for every block.
func (b *Builder) libraryDocuments(dbc dbctx.Context, lk keys.LibraryKey, only *string) ([]*Document, error) {
	lib, err := b.store.GetLibrary(dbc, lk)
	if err != nil {
		return nil, err
	}
	if lib == nil {
		return nil, nil
	}
	blocks := map[string]*store.Block{}
	parent := map[string]string{}
	var order []string
	for _, id := range lib.Children {
		top, err := b.store.Block(dbc, lib, id)
		if err != nil || top == nil {
			b.log.Warn("skip library block", "library", lk.String(), "block_id", id, "error", err)
			continue
		}
		below, err := b.store.Descendants(dbc, lib, id)
		if err != nil {
			b.log.Warn("skip library block descendants", "library", lk.String(), "block_id", id, "error", err)
		}
		for _, blk := range append([]*store.Block{top}, below...) {
			if _, dup := blocks[blk.ID]; dup {
				continue
			}
			blocks[blk.ID] = blk
			order = append(order, blk.ID)
			for _, c := range blk.Children {
				parent[c] = blk.ID
			}
		}
	}

	var targets []string
	if only == nil {
		targets = order
	} else if blocks[*only] != nil {
		targets = []string{*only}
		for _, id := range order {
			for p := parent[id]; p != ""; p = parent[p] {
				if p == *only {
					targets = append(targets, id)
					break
				}
			}
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	accessID, err := b.accessID(dbc, lk.String())
	if err != nil {
		return nil, err
	}
	usageKeys := make([]string, 0, len(targets))
	for _, id := range targets {
		usageKeys = append(usageKeys, blocks[id].UsageKey.String())
	}
	facets, err := b.facets(dbc, usageKeys)
	if err != nil {
		return nil, err
	}

	out := make([]*Document, 0, len(targets))
	for i, id := range targets {
		blk := blocks[id]
		crumbs := []Breadcrumb{{DisplayName: lib.DisplayName}}
		var chain []Breadcrumb
		for p := parent[id]; p != "" && len(chain) < 64; p = parent[p] {
			pb := blocks[p]
			chain = append(chain, Breadcrumb{DisplayName: titleOf(pb.DisplayName, pb.ID)})
		}
		reverse(chain)
		crumbs = append(crumbs, chain...)

		doc := &Document{
			ID:          DocumentID(usageKeys[i]),
			Type:        DocTypeLibraryBlock,
			UsageKey:    usageKeys[i],
			BlockID:     id,
			DisplayName: titleOf(blk.DisplayName, id),
			BlockType:   blk.BlockType,
			ContextKey:  lk.String(),
			Org:         lk.Org,
			AccessID:    accessID,
			Breadcrumbs: crumbs,
			Tags:        facets[usageKeys[i]],
		}
		if blk.DefinitionID != uuid.Nil && (blk.BlockType == types.BlockTypeProblem || blk.BlockType == types.BlockTypeHTML) {
			def, err := b.store.Definition(dbc, blk.DefinitionID)
			if err != nil {
				b.log.Warn("load definition failed; indexing without content", "usage_key", doc.UsageKey, "error", err)
			} else if def != nil {
				doc.Content = contentOf(blk.BlockType, def.Data)
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

// Facets exposes tag facets for tags-only updates.
func (b *Builder) Facets(dbc dbctx.Context, usageKeys []string) (map[string]tagging.Facets, error) {
	return b.facets(dbc, usageKeys)
}

func (b *Builder) facets(dbc dbctx.Context, usageKeys []string) (map[string]tagging.Facets, error) {
	if b.tags == nil {
		return map[string]tagging.Facets{}, nil
	}
	out, err := b.tags.Facets(dbc, usageKeys)
	if err != nil {
		return nil, fmt.Errorf("load tag facets: %w", err)
	}
	return out, nil
}

func (b *Builder) accessID(dbc dbctx.Context, contextKey string) (int64, error) {
	row, err := b.access.GetOrCreate(dbc, contextKey)
	if err != nil {
		return 0, fmt.Errorf("search access for %s: %w", contextKey, err)
	}
	return row.ID, nil
}

func courseKeysOf(blocks []*types.CourseBlock) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.UsageKey)
	}
	return out
}

func titleOf(displayName, fallback string) string {
	if s := strings.TrimSpace(displayName); s != "" {
		return s
	}
	return fallback
}

func reverse(s []Breadcrumb) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
