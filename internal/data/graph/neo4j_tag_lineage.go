package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/neo4jdb"
)

// UpsertTagGraph mirrors tags and their CHILD_OF edges. Tags whose parent is
// not in the batch are linked only when the parent node already exists.
func UpsertTagGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, taxonomy *types.Taxonomy, tags []*types.Tag) error {
	if client == nil || client.Driver == nil || taxonomy == nil || len(tags) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	nodes := make([]map[string]any, 0, len(tags))
	edges := make([]map[string]any, 0, len(tags))
	for _, t := range tags {
		if t == nil || t.ID == uuid.Nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":          t.ID.String(),
			"taxonomy_id": taxonomy.ID.String(),
			"taxonomy":    taxonomy.Name,
			"value":       t.Value,
			"synced_at":   now,
		})
		if t.ParentID != nil && *t.ParentID != uuid.Nil {
			edges = append(edges, map[string]any{"child_id": t.ID.String(), "parent_id": t.ParentID.String()})
		}
	}
	if len(nodes) == 0 {
		return nil
	}

	session := client.WriteSession(ctx)
	defer session.Close(ctx)

	if res, err := session.Run(ctx, `CREATE CONSTRAINT tag_id_unique IF NOT EXISTS FOR (t:Tag) REQUIRE t.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (t:Tag {id: n.id})
SET t += n
`, map[string]any{"nodes": nodes})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			return nil, nil
		}
		res, err = tx.Run(ctx, `
UNWIND $edges AS e
MATCH (c:Tag {id: e.child_id})
MATCH (p:Tag {id: e.parent_id})
MERGE (c)-[:CHILD_OF]->(p)
`, map[string]any{"edges": edges})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// QueryTagLineage returns, per tag id, the tag values from the taxonomy root
// down to the tag itself. Ids unknown to the graph are absent from the map.
func QueryTagLineage(ctx context.Context, client *neo4jdb.Client, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(ids))
	if client == nil || client.Driver == nil || len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}

	session := client.ReadSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $ids AS id
MATCH path = (t:Tag {id: id})-[:CHILD_OF*0..]->(root:Tag)
WHERE NOT (root)-[:CHILD_OF]->()
RETURN id, [n IN reverse(nodes(path)) | n.value] AS lineage
`, map[string]any{"ids": raw})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			idRaw, _ := rec.Get("id")
			lineageRaw, _ := rec.Get("lineage")
			id, err := uuid.Parse(fmt.Sprint(idRaw))
			if err != nil {
				continue
			}
			values, _ := lineageRaw.([]any)
			lineage := make([]string, 0, len(values))
			for _, v := range values {
				lineage = append(lineage, fmt.Sprint(v))
			}
			out[id] = lineage
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j tag lineage: %w", err)
	}
	return out, nil
}
