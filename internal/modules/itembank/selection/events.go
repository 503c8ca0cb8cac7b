package selection

import (
	"context"

	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

// BlockRef identifies a copied block and where it was copied from.
type BlockRef struct {
	UsageKey             string `json:"usage_key"`
	OriginalUsageKey     string `json:"original_usage_key"`
	OriginalUsageVersion string `json:"original_usage_version"`
}

// BlockInfo is a BlockRef plus its descendants, flattened.
type BlockInfo struct {
	BlockRef
	Descendants []BlockRef `json:"descendants"`
}

type blockInfoCache struct {
	log    *logger.Logger
	blocks contentrepo.CourseBlockRepo
	seen   map[string]BlockInfo
}

func newBlockInfoCache(log *logger.Logger, blocks contentrepo.CourseBlockRepo) *blockInfoCache {
	return &blockInfoCache{log: log, blocks: blocks, seen: map[string]BlockInfo{}}
}

func (c *blockInfoCache) list(ctx context.Context, usageKeys []string) []BlockInfo {
	out := make([]BlockInfo, 0, len(usageKeys))
	for _, k := range usageKeys {
		out = append(out, c.get(ctx, k))
	}
	return out
}

// get walks the block's subtree at call time. Blocks that no longer exist
// (ids dropped by a resync) yield only their usage key.
func (c *blockInfoCache) get(ctx context.Context, usageKey string) BlockInfo {
	if info, ok := c.seen[usageKey]; ok {
		return info
	}
	info := BlockInfo{BlockRef: BlockRef{UsageKey: usageKey}, Descendants: []BlockRef{}}
	dbc := dbctx.Context{Ctx: ctx}
	b, err := c.blocks.GetByUsageKey(dbc, usageKey)
	if err != nil {
		c.log.Warn("load block for analytics failed", "usage_key", usageKey, "error", err)
	}
	if b != nil {
		info.BlockRef = refOf(b)
		below, err := course.Subtree(dbc, c.blocks, usageKey)
		if err != nil {
			c.log.Warn("load descendants for analytics failed", "usage_key", usageKey, "error", err)
		}
		for _, d := range below {
			info.Descendants = append(info.Descendants, refOf(d))
		}
	}
	c.seen[usageKey] = info
	return info
}

func refOf(b *types.CourseBlock) BlockRef {
	return BlockRef{
		UsageKey:             b.UsageKey,
		OriginalUsageKey:     b.CopiedFromUsageKey,
		OriginalUsageVersion: b.CopiedFromVersion,
	}
}
