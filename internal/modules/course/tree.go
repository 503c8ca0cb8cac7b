package course

import (
	"encoding/json"

	"gorm.io/datatypes"

	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

// maxDepth bounds parent walks so a corrupt parent cycle cannot spin forever.
const maxDepth = 64

// Subtree returns every block strictly below rootKey, breadth-first with
// siblings in position order.
func Subtree(dbc dbctx.Context, repo contentrepo.CourseBlockRepo, rootKey string) ([]*types.CourseBlock, error) {
	var out []*types.CourseBlock
	frontier := []string{rootKey}
	seen := map[string]bool{rootKey: true}
	for depth := 0; len(frontier) > 0 && depth < maxDepth; depth++ {
		rows, err := repo.ListByParents(dbc, frontier)
		if err != nil {
			return nil, err
		}
		byParent := map[string][]*types.CourseBlock{}
		for _, r := range rows {
			byParent[r.ParentUsageKey] = append(byParent[r.ParentUsageKey], r)
		}
		var next []string
		for _, p := range frontier {
			for _, r := range byParent[p] {
				if seen[r.UsageKey] {
					continue
				}
				seen[r.UsageKey] = true
				out = append(out, r)
				next = append(next, r.UsageKey)
			}
		}
		frontier = next
	}
	return out, nil
}

// Ancestors returns the blocks above usageKey, root first. The block itself
// is not included.
func Ancestors(dbc dbctx.Context, repo contentrepo.CourseBlockRepo, block *types.CourseBlock) ([]*types.CourseBlock, error) {
	var chain []*types.CourseBlock
	parent := block.ParentUsageKey
	for i := 0; parent != "" && i < maxDepth; i++ {
		row, err := repo.GetByUsageKey(dbc, parent)
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		chain = append(chain, row)
		parent = row.ParentUsageKey
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// DecodeSettings returns the settings map of a block; nil when unset.
func DecodeSettings(b *types.CourseBlock) map[string]any {
	if b == nil || len(b.Settings) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b.Settings, &out); err != nil {
		return nil
	}
	return out
}

func EncodeSettings(settings map[string]any) (datatypes.JSON, error) {
	if len(settings) == 0 {
		return datatypes.JSON([]byte(`{}`)), nil
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func usageKeysOf(blocks []*types.CourseBlock) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.UsageKey)
	}
	return out
}
