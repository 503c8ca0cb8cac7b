package itembank

import (
	"context"
	"net/http"
	"strings"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/itembank/selection"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
)

// GetChildBlocks returns the children assigned to the learner, in item-bank
// order. A failed selection write falls back to the stored selection.
func (u Usecases) GetChildBlocks(ctx context.Context, userID, usageKey string) ([]*types.CourseBlock, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errs.ErrUnauthorized)
	}
	dbc := dbctx.Context{Ctx: ctx}
	_, settings, err := u.load(dbc, usageKey)
	if err != nil {
		return nil, err
	}
	children, err := u.deps.CourseBlocks.ListChildren(dbc, usageKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_children_failed", err)
	}
	childKeys := usageKeysOf(children)

	var selected []string
	res, err := u.deps.Selection.Select(ctx, selection.Input{
		UserID:   userID,
		ItemBank: usageKey,
		Children: childKeys,
		MaxCount: settings.MaxCount,
		Mode:     settings.Mode,
	})
	if err == nil {
		selected = res.Selected
	} else {
		u.deps.Log.Warn("selection failed; serving stored selection", "usage_key", usageKey, "error", err)
		selected, err = u.deps.Selection.Current(ctx, userID, usageKey, childKeys)
		if err != nil {
			u.deps.Log.Warn("load stored selection failed", "usage_key", usageKey, "error", err)
		}
	}

	assigned := make(map[string]bool, len(selected))
	for _, k := range selected {
		assigned[k] = true
	}
	out := make([]*types.CourseBlock, 0, len(selected))
	for _, c := range children {
		if assigned[c.UsageKey] {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetContentTitles lists the display names of the learner's assigned
// content. Containers contribute the titles of their leaf descendants.
func (u Usecases) GetContentTitles(ctx context.Context, userID, usageKey string) ([]string, error) {
	blocks, err := u.GetChildBlocks(ctx, userID, usageKey)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	titles := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if !u.deps.BlockTypes.IsContainer(b.BlockType) {
			titles = append(titles, titleOf(b))
			continue
		}
		below, err := course.Subtree(dbc, u.deps.CourseBlocks, b.UsageKey)
		if err != nil {
			return nil, apierr.New(http.StatusInternalServerError, "load_children_failed", err)
		}
		for _, d := range below {
			if !u.deps.BlockTypes.IsContainer(d.BlockType) {
				titles = append(titles, titleOf(d))
			}
		}
	}
	return titles, nil
}

func titleOf(b *types.CourseBlock) string {
	if name := strings.TrimSpace(b.DisplayName); name != "" {
		return name
	}
	return b.BlockID
}

type ResetReport struct {
	Reset   []string          `json:"reset"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
	// Children is the fresh assignment made after the reset.
	Children []string `json:"children"`
}

// ResetSelectedChildren clears learner state on every assigned child that
// supports it, then discards the selection so new children are assigned.
// One child's failure does not stop the others.
func (u Usecases) ResetSelectedChildren(ctx context.Context, userID, usageKey string) (*ResetReport, error) {
	dbc := dbctx.Context{Ctx: ctx}
	_, settings, err := u.load(dbc, usageKey)
	if err != nil {
		return nil, err
	}
	if !settings.AllowResettingChildren {
		return nil, apierr.New(http.StatusBadRequest, "reset_not_allowed", errs.ErrResetNotAllowed)
	}
	assigned, err := u.GetChildBlocks(ctx, userID, usageKey)
	if err != nil {
		return nil, err
	}

	report := &ResetReport{Reset: []string{}, Skipped: []string{}}
	for _, b := range assigned {
		bt, ok := u.deps.BlockTypes.Get(b.BlockType)
		if !ok || bt.Reset == nil {
			report.Skipped = append(report.Skipped, b.UsageKey)
			continue
		}
		if err := bt.Reset(ctx, userID, b); err != nil {
			u.deps.Log.Warn("child reset failed", "usage_key", b.UsageKey, "item_bank", usageKey, "error", err)
			if report.Failed == nil {
				report.Failed = map[string]string{}
			}
			report.Failed[b.UsageKey] = err.Error()
			continue
		}
		report.Reset = append(report.Reset, b.UsageKey)
	}

	if err := u.deps.Selection.Clear(ctx, userID, usageKey); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "reset_selection_failed", err)
	}
	fresh, err := u.GetChildBlocks(ctx, userID, usageKey)
	if err != nil {
		return nil, err
	}
	report.Children = usageKeysOf(fresh)
	u.deps.Log.Info("Item-bank children reset",
		"usage_key", usageKey,
		"reset", len(report.Reset),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}
