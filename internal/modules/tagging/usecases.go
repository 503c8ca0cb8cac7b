// Package tagging manages taxonomies, hierarchical tags, and the tags applied
// to blocks. Tag changes are pushed to the search index as tags-only updates.
package tagging

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contentlib/internal/data/graph"
	taggingrepo "github.com/yungbote/contentlib/internal/data/repos/tagging"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/neo4jdb"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Taxonomies taggingrepo.TaxonomyRepo
	Tags       taggingrepo.TagRepo
	ObjectTags taggingrepo.ObjectTagRepo

	// Optional.
	Index queue.IndexQueue
	Graph *neo4jdb.Client
}

type Usecases struct {
	deps    UsecasesDeps
	lineage LineageResolver
}

func New(deps UsecasesDeps) Usecases {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.With("service", "TaggingService")
	var lineage LineageResolver = &RelationalLineage{Tags: deps.Tags}
	if deps.Graph != nil {
		lineage = &GraphLineage{Client: deps.Graph, Fallback: lineage, Log: deps.Log}
	}
	return Usecases{deps: deps, lineage: lineage}
}

type CreateTaxonomyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (u Usecases) CreateTaxonomy(ctx context.Context, in CreateTaxonomyInput) (*types.Taxonomy, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.Contains(name, ">") {
		return nil, apierr.New(http.StatusBadRequest, "invalid_taxonomy_name", errs.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := u.deps.Taxonomies.GetByName(dbc, name)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_taxonomy_failed", err)
	}
	if existing != nil {
		return nil, apierr.New(http.StatusConflict, "taxonomy_exists", errs.ErrConflict)
	}
	now := time.Now()
	tax := &types.Taxonomy{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.deps.Taxonomies.Create(dbc, tax); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "create_taxonomy_failed", err)
	}
	u.deps.Log.Info("Taxonomy created", "taxonomy", name)
	return tax, nil
}

type CreateTagInput struct {
	Taxonomy string `json:"taxonomy"`
	Value    string `json:"value"`
	// Parent is the value of an existing tag in the same taxonomy.
	Parent string `json:"parent,omitempty"`
}

func (u Usecases) CreateTag(ctx context.Context, in CreateTagInput) (*types.Tag, error) {
	value := strings.TrimSpace(in.Value)
	if value == "" || strings.Contains(value, ">") {
		return nil, apierr.New(http.StatusBadRequest, "invalid_tag_value", errs.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	tax, err := u.taxonomy(dbc, in.Taxonomy)
	if err != nil {
		return nil, err
	}
	existing, err := u.deps.Tags.GetByValue(dbc, tax.ID, value)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_tag_failed", err)
	}
	if existing != nil {
		return nil, apierr.New(http.StatusConflict, "tag_exists", errs.ErrConflict)
	}
	tag := &types.Tag{ID: uuid.New(), TaxonomyID: tax.ID, Value: value, CreatedAt: time.Now()}
	if parent := strings.TrimSpace(in.Parent); parent != "" {
		p, err := u.deps.Tags.GetByValue(dbc, tax.ID, parent)
		if err != nil {
			return nil, apierr.New(http.StatusInternalServerError, "load_tag_failed", err)
		}
		if p == nil {
			return nil, apierr.New(http.StatusNotFound, "parent_tag_not_found", errs.ErrNotFound)
		}
		tag.ParentID = &p.ID
	}
	if err := u.deps.Tags.Create(dbc, tag); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "create_tag_failed", err)
	}
	if err := graph.UpsertTagGraph(ctx, u.deps.Graph, u.deps.Log, tax, []*types.Tag{tag}); err != nil {
		u.deps.Log.Warn("mirror tag to neo4j failed", "taxonomy", tax.Name, "tag", value, "error", err)
	}
	return tag, nil
}

// SetObjectTags replaces the object's tags in one taxonomy. Every value must
// already exist. The search document's tags are refreshed asynchronously.
func (u Usecases) SetObjectTags(ctx context.Context, objectKey, taxonomy string, values []string) ([]*types.ObjectTag, error) {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil, apierr.New(http.StatusBadRequest, "invalid_object_key", errs.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	tax, err := u.taxonomy(dbc, taxonomy)
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	rows := make([]*types.ObjectTag, 0, len(values))
	now := time.Now()
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tag, err := u.deps.Tags.GetByValue(dbc, tax.ID, v)
		if err != nil {
			return nil, apierr.New(http.StatusInternalServerError, "load_tag_failed", err)
		}
		if tag == nil {
			return nil, apierr.New(http.StatusBadRequest, "unknown_tag", fmt.Errorf("tag %q in %s: %w", v, tax.Name, errs.ErrNotFound))
		}
		if seen[tag.ID] {
			continue
		}
		seen[tag.ID] = true
		rows = append(rows, &types.ObjectTag{
			ID:         uuid.New(),
			ObjectKey:  objectKey,
			TaxonomyID: tax.ID,
			TagID:      tag.ID,
			CreatedAt:  now,
		})
	}
	if err := u.deps.ObjectTags.ReplaceForObject(dbc, objectKey, tax.ID, rows); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "set_object_tags_failed", err)
	}
	u.deps.Log.Info("Object tags set", "object_key", objectKey, "taxonomy", tax.Name, "tags", len(rows))
	if u.deps.Index != nil {
		if err := u.deps.Index.EnqueueTagsUpdate(dbc, objectKey); err != nil {
			u.deps.Log.Warn("enqueue tags update failed", "object_key", objectKey, "error", err)
		}
	}
	return rows, nil
}

// ObjectTags returns the object's tag values grouped by taxonomy name.
func (u Usecases) ObjectTags(ctx context.Context, objectKey string) (map[string][]string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := u.deps.ObjectTags.ListByObject(dbc, objectKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_object_tags_failed", err)
	}
	taxIDs, tagIDs := idsOf(rows)
	taxes, err := u.deps.Taxonomies.GetByIDs(dbc, taxIDs)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_taxonomies_failed", err)
	}
	tags, err := u.deps.Tags.GetByIDs(dbc, tagIDs)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_tags_failed", err)
	}
	out := map[string][]string{}
	for _, r := range rows {
		tax, tag := taxes[r.TaxonomyID], tags[r.TagID]
		if tax == nil || tag == nil {
			continue
		}
		out[tax.Name] = append(out[tax.Name], tag.Value)
	}
	return out, nil
}

// DeleteObjectTags drops every tag on the given objects.
func (u Usecases) DeleteObjectTags(ctx context.Context, objectKeys ...string) error {
	if err := u.deps.ObjectTags.DeleteByObjects(dbctx.Context{Ctx: ctx}, objectKeys); err != nil {
		return apierr.New(http.StatusInternalServerError, "delete_object_tags_failed", err)
	}
	return nil
}

func (u Usecases) taxonomy(dbc dbctx.Context, name string) (*types.Taxonomy, error) {
	tax, err := u.deps.Taxonomies.GetByName(dbc, strings.TrimSpace(name))
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_taxonomy_failed", err)
	}
	if tax == nil {
		return nil, apierr.New(http.StatusNotFound, "taxonomy_not_found", errs.ErrNotFound)
	}
	return tax, nil
}

func idsOf(rows []*types.ObjectTag) (taxIDs, tagIDs []uuid.UUID) {
	seenTax := map[uuid.UUID]bool{}
	for _, r := range rows {
		if !seenTax[r.TaxonomyID] {
			seenTax[r.TaxonomyID] = true
			taxIDs = append(taxIDs, r.TaxonomyID)
		}
		tagIDs = append(tagIDs, r.TagID)
	}
	return taxIDs, tagIDs
}
