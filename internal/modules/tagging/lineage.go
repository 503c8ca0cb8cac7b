package tagging

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/contentlib/internal/data/graph"
	taggingrepo "github.com/yungbote/contentlib/internal/data/repos/tagging"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/neo4jdb"
)

// maxTagDepth bounds parent walks over a corrupt hierarchy.
const maxTagDepth = 32

// LineageResolver maps tag ids to their values from the taxonomy root down.
type LineageResolver interface {
	Lineage(dbc dbctx.Context, tagIDs []uuid.UUID) (map[uuid.UUID][]string, error)
}

// RelationalLineage walks parent pointers one level per query.
type RelationalLineage struct {
	Tags taggingrepo.TagRepo
}

func (r *RelationalLineage) Lineage(dbc dbctx.Context, tagIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	known := map[uuid.UUID]*types.Tag{}
	want := tagIDs
	for depth := 0; len(want) > 0 && depth < maxTagDepth; depth++ {
		rows, err := r.Tags.GetByIDs(dbc, want)
		if err != nil {
			return nil, err
		}
		var next []uuid.UUID
		for _, t := range rows {
			known[t.ID] = t
			if t.ParentID != nil && known[*t.ParentID] == nil {
				next = append(next, *t.ParentID)
			}
		}
		want = next
	}

	out := make(map[uuid.UUID][]string, len(tagIDs))
	for _, id := range tagIDs {
		var chain []string
		cur := known[id]
		for i := 0; cur != nil && i < maxTagDepth; i++ {
			chain = append(chain, cur.Value)
			if cur.ParentID == nil {
				break
			}
			cur = known[*cur.ParentID]
		}
		if len(chain) == 0 {
			continue
		}
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		out[id] = chain
	}
	return out, nil
}

// GraphLineage answers from the Neo4j mirror and falls back for any id the
// mirror does not know, or when the query fails.
type GraphLineage struct {
	Client   *neo4jdb.Client
	Fallback LineageResolver
	Log      *logger.Logger
}

func (g *GraphLineage) Lineage(dbc dbctx.Context, tagIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := graph.QueryTagLineage(ctx, g.Client, tagIDs)
	if err != nil {
		if g.Log != nil {
			g.Log.Warn("neo4j lineage failed; using relational walk", "error", err)
		}
		return g.Fallback.Lineage(dbc, tagIDs)
	}
	var missing []uuid.UUID
	for _, id := range tagIDs {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	rest, err := g.Fallback.Lineage(dbc, missing)
	if err != nil {
		return nil, err
	}
	for id, chain := range rest {
		out[id] = chain
	}
	return out, nil
}

// Facets is the tag projection stored on a search document: the taxonomy
// names plus, per depth, "Taxonomy > t0 > ... > tN" paths.
type Facets struct {
	Taxonomy []string
	Levels   [][]string
}

func (f Facets) Empty() bool { return len(f.Taxonomy) == 0 }

// Document renders the facets as {"taxonomy": [...], "level0": [...], ...}.
func (f Facets) Document() map[string]any {
	out := map[string]any{}
	if f.Empty() {
		return out
	}
	out["taxonomy"] = f.Taxonomy
	for i, lvl := range f.Levels {
		out[fmt.Sprintf("level%d", i)] = lvl
	}
	return out
}

type facetBuilder struct {
	taxonomies map[string]bool
	levels     []map[string]bool
}

func (b *facetBuilder) add(taxonomy string, lineage []string) {
	if b.taxonomies == nil {
		b.taxonomies = map[string]bool{}
	}
	b.taxonomies[taxonomy] = true
	path := taxonomy
	for i, v := range lineage {
		path += " > " + v
		for len(b.levels) <= i {
			b.levels = append(b.levels, map[string]bool{})
		}
		b.levels[i][path] = true
	}
}

func (b *facetBuilder) build() Facets {
	f := Facets{Taxonomy: sortedKeys(b.taxonomies)}
	for _, lvl := range b.levels {
		f.Levels = append(f.Levels, sortedKeys(lvl))
	}
	return f
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Facets computes the tag facets of each object. Objects without tags, or
// with tags only in disabled taxonomies, map to empty Facets.
func (u Usecases) Facets(dbc dbctx.Context, objectKeys []string) (map[string]Facets, error) {
	rows, err := u.deps.ObjectTags.ListByObjects(dbc, objectKeys)
	if err != nil {
		return nil, fmt.Errorf("load object tags: %w", err)
	}
	taxIDs, tagIDs := idsOf(rows)
	taxes, err := u.deps.Taxonomies.GetByIDs(dbc, taxIDs)
	if err != nil {
		return nil, fmt.Errorf("load taxonomies: %w", err)
	}
	lineage, err := u.lineage.Lineage(dbc, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve tag lineage: %w", err)
	}

	builders := map[string]*facetBuilder{}
	for _, r := range rows {
		tax := taxes[r.TaxonomyID]
		chain := lineage[r.TagID]
		if tax == nil || !tax.Enabled || len(chain) == 0 {
			continue
		}
		b := builders[r.ObjectKey]
		if b == nil {
			b = &facetBuilder{}
			builders[r.ObjectKey] = b
		}
		b.add(strings.TrimSpace(tax.Name), chain)
	}
	out := make(map[string]Facets, len(objectKeys))
	for _, k := range objectKeys {
		if b := builders[k]; b != nil {
			out[k] = b.build()
		} else {
			out[k] = Facets{}
		}
	}
	return out, nil
}
