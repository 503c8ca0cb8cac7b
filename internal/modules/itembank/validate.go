package itembank

import (
	"context"
	"fmt"
	"net/http"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

type Severity string

const (
	SeverityNotConfigured Severity = "NOT_CONFIGURED"
	SeverityError         Severity = "ERROR"
	SeverityWarning       Severity = "WARNING"
)

type ValidationMessage struct {
	Type Severity `json:"type"`
	Text string   `json:"text"`
	// Library is set on messages about one source library.
	Library string `json:"library,omitempty"`
}

type ValidationReport struct {
	Messages []ValidationMessage `json:"messages"`
}

// Valid is false when the item-bank is unconfigured or has errors.
func (r *ValidationReport) Valid() bool {
	for _, m := range r.Messages {
		if m.Type != SeverityWarning {
			return false
		}
	}
	return true
}

func (r *ValidationReport) add(t Severity, library, format string, args ...any) {
	r.Messages = append(r.Messages, ValidationMessage{Type: t, Text: fmt.Sprintf(format, args...), Library: library})
}

type State string

const (
	StateUnconfigured State = "unconfigured"
	StateConfigured   State = "configured"
	StateOutOfDate    State = "out_of_date"
	StateDeleted      State = "deleted"
)

type sourceStatus struct {
	ref     keys.LibraryVersionRef
	missing bool
	current string
}

func (u Usecases) sourceStatuses(dbc dbctx.Context, settings *types.ItemBankSettings) ([]sourceStatus, error) {
	refs, err := keys.ParseLibraryVersionRefs(settings.SourceLibraries)
	if err != nil {
		return nil, err
	}
	out := make([]sourceStatus, 0, len(refs))
	for _, ref := range refs {
		current, err := u.deps.Store.GetLibraryVersion(dbc, ref.Library)
		if err != nil {
			return nil, err
		}
		out = append(out, sourceStatus{ref: ref, missing: current == "", current: current})
	}
	return out, nil
}

// Validate reports configuration problems an author should see. A missing
// library stops further checks; stale versions and small pools are warnings.
func (u Usecases) Validate(ctx context.Context, usageKey string) (*ValidationReport, error) {
	dbc := dbctx.Context{Ctx: ctx}
	_, settings, err := u.load(dbc, usageKey)
	if err != nil {
		return nil, err
	}
	statuses, err := u.sourceStatuses(dbc, settings)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "validate_failed", err)
	}
	report := &ValidationReport{Messages: []ValidationMessage{}}
	if len(statuses) == 0 {
		report.add(SeverityNotConfigured, "", "A library has not yet been selected.")
		return report, nil
	}

	for _, s := range statuses {
		if s.missing {
			report.add(SeverityError, s.ref.Library.String(), "Library %s is invalid, corrupt, or has been deleted.", s.ref.Library.String())
		}
	}
	if !report.Valid() {
		return report, nil
	}
	for _, s := range statuses {
		if s.ref.Version != s.current {
			report.add(SeverityWarning, s.ref.Library.String(), "This component is out of date. The library %s has new content.", s.ref.Library.String())
		}
	}

	children, err := u.deps.CourseBlocks.ListChildren(dbc, usageKey)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_children_failed", err)
	}
	matching := len(children)
	switch {
	case matching == 0 && settings.CapaType != types.CapaTypeAny:
		report.add(SeverityWarning, "", "There are no problems in the specified libraries of type %s.", settings.CapaType)
	case matching == 0:
		report.add(SeverityWarning, "", "There is no matching content in the specified libraries.")
	case settings.MaxCount != -1 && settings.MaxCount > matching:
		report.add(SeverityWarning, "", "The component is configured to fetch %d items, but there are only %d matching.", settings.MaxCount, matching)
	}
	return report, nil
}

// State maps the item-bank onto its lifecycle. A missing library counts as
// out of date: a resync is needed either way.
func (u Usecases) State(ctx context.Context, usageKey string) (State, error) {
	dbc := dbctx.Context{Ctx: ctx}
	block, err := u.deps.CourseBlocks.GetByUsageKey(dbc, usageKey)
	if err != nil {
		return "", apierr.New(http.StatusInternalServerError, "load_itembank_failed", err)
	}
	if block == nil {
		return StateDeleted, nil
	}
	_, settings, err := u.load(dbc, usageKey)
	if err != nil {
		return "", err
	}
	statuses, err := u.sourceStatuses(dbc, settings)
	if err != nil {
		return "", apierr.New(http.StatusInternalServerError, "load_state_failed", err)
	}
	if len(statuses) == 0 {
		return StateUnconfigured, nil
	}
	for _, s := range statuses {
		if s.missing || s.ref.Version != s.current {
			return StateOutOfDate, nil
		}
	}
	return StateConfigured, nil
}
