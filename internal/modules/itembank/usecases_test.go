package itembank_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gorm.io/datatypes"

	"github.com/yungbote/contentlib/internal/analytics"
	"github.com/yungbote/contentlib/internal/data/repos"
	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/itembank"
	"github.com/yungbote/contentlib/internal/modules/itembank/blocktypes"
	"github.com/yungbote/contentlib/internal/modules/itembank/selection"
	"github.com/yungbote/contentlib/internal/modules/library/authoring"
	"github.com/yungbote/contentlib/internal/modules/library/copier"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
)

const (
	courseRoot = "block-v1:X+Y+Z+type@course+block@course"
	learner    = "learner-x"
)

type fixture struct {
	set      repos.Set
	author   authoring.Usecases
	banks    itembank.Usecases
	recorder *analytics.Recorder
	libKey   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)

	author := authoring.New(authoring.UsecasesDeps{
		DB: db, Log: log,
		Libraries: set.Libraries, Versions: set.Versions, Definitions: set.Definitions, CourseBlocks: set.CourseBlocks,
	})
	courses := course.New(course.UsecasesDeps{
		DB: db, Log: log,
		Courses: set.Courses, CourseBlocks: set.CourseBlocks, Definitions: set.Definitions,
		ItemBanks: set.ItemBanks, Selections: set.Selections,
	})
	lib, err := author.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: "OrgL", Slug: "Pool", DisplayName: "Pool"})
	if err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	for _, b := range []struct{ id, data string }{
		{"A", "<problem><multiplechoiceresponse/></problem>"},
		{"B", "<problem><multiplechoiceresponse/></problem>"},
		{"C", "<problem><optionresponse/></problem>"},
		{"D", "<problem><optionresponse/></problem>"},
	} {
		if _, err := author.AddBlock(ctx, lib.LibraryKey, authoring.AddBlockInput{
			BlockType: "problem", BlockID: b.id, DisplayName: "Problem " + b.id, Data: b.data,
		}); err != nil {
			t.Fatalf("AddBlock(%s): %v", b.id, err)
		}
	}
	if _, err := courses.CreateCourse(ctx, course.CreateCourseInput{Org: "X", Course: "Y", Run: "Z"}); err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	st := store.New(log, set.Libraries, set.Versions, set.Definitions)
	rec := &analytics.Recorder{}
	banks := itembank.New(itembank.UsecasesDeps{
		DB: db, Log: log,
		CourseBlocks: set.CourseBlocks, ItemBanks: set.ItemBanks, Selections: set.Selections,
		Store:  st,
		Copier: copier.New(db, log, st, set.CourseBlocks, set.ItemBanks),
		Selection: selection.New(db, log, set.Selections, set.CourseBlocks, selection.Options{
			Rand:      rand.New(rand.NewSource(5)),
			Publisher: rec,
		}),
		BlockTypes: blocktypes.Default(set.BlockStates),
	})
	return &fixture{set: set, author: author, banks: banks, recorder: rec, libKey: lib.LibraryKey}
}

func intp(v int) *int { return &v }

func (f *fixture) createBank(t *testing.T, id string, settings itembank.SettingsInput) *itembank.View {
	t.Helper()
	view, err := f.banks.Create(context.Background(), "author", itembank.CreateInput{
		ParentUsageKey: courseRoot,
		BlockID:        id,
		DisplayName:    "Bank " + id,
		Settings:       settings,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return view
}

func (f *fixture) sources() []itembank.SourceLibrary {
	return []itembank.SourceLibrary{{LibraryKey: f.libKey}}
}

func keysOf(blocks []*types.CourseBlock) []string {
	var out []string
	for _, b := range blocks {
		out = append(out, b.UsageKey)
	}
	return out
}

func hasMessage(r *itembank.ValidationReport, sev itembank.Severity, substr string) bool {
	for _, m := range r.Messages {
		if m.Type == sev && strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func TestRandomSelectionAndReducedMaxCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), Mode: "random", MaxCount: intp(2)})
	if len(bank.Children) != 4 {
		t.Fatalf("children: want=4 got=%d", len(bank.Children))
	}

	first, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("assigned: want=2 got=%d", len(first))
	}
	again, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks again: %v", err)
	}
	if diff := cmp.Diff(keysOf(first), keysOf(again)); diff != "" {
		t.Fatalf("second read differs (-first +again):\n%s", diff)
	}

	if _, err := f.banks.UpdateSettings(ctx, "author", bank.UsageKey, itembank.SettingsPatch{MaxCount: intp(1)}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	reduced, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks reduced: %v", err)
	}
	if len(reduced) != 1 {
		t.Fatalf("assigned after reduce: want=1 got=%d", len(reduced))
	}
	if reduced[0].UsageKey != first[0].UsageKey && reduced[0].UsageKey != first[1].UsageKey {
		t.Fatalf("kept %s not among %v", reduced[0].UsageKey, keysOf(first))
	}
	removed := f.recorder.Named(analytics.EventContentRemoved)
	if len(removed) != 1 || removed[0].Payload["reason"] != selection.ReasonOverlimit {
		t.Fatalf("removed events: %+v", removed)
	}

	titles, err := f.banks.GetContentTitles(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetContentTitles: %v", err)
	}
	if len(titles) != 1 || !strings.HasPrefix(titles[0], "Problem ") {
		t.Fatalf("titles: got=%v", titles)
	}
}

func TestCapaFilterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), CapaType: "multiplechoice", MaxCount: intp(5)})

	report, err := f.banks.Validate(ctx, bank.UsageKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasMessage(report, itembank.SeverityWarning, "only 2 matching") {
		t.Fatalf("want only 2 matching warning, got=%+v", report.Messages)
	}
	assigned, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks: %v", err)
	}
	if len(assigned) != 2 {
		t.Fatalf("assigned: want=2 got=%d", len(assigned))
	}

	if _, err := f.banks.UpdateSettings(ctx, "author", bank.UsageKey, itembank.SettingsPatch{CapaType: strp("formularesponse")}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	report, err = f.banks.Validate(ctx, bank.UsageKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasMessage(report, itembank.SeverityWarning, "no problems") {
		t.Fatalf("want zero-match warning, got=%+v", report.Messages)
	}
}

func strp(s string) *string { return &s }

func TestAllChildrenNeverWarnsAboutCount(t *testing.T) {
	f := newFixture(t)
	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), MaxCount: intp(-1)})
	report, err := f.banks.Validate(context.Background(), bank.UsageKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(report.Messages) != 0 || !report.Valid() {
		t.Fatalf("want clean report, got=%+v", report.Messages)
	}
	assigned, err := f.banks.GetChildBlocks(context.Background(), learner, bank.UsageKey)
	if err != nil || len(assigned) != 4 {
		t.Fatalf("assigned: want=4 got=%d err=%v", len(assigned), err)
	}
}

func TestOutOfDateThenSyncKeepsIDsAndSelections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), MaxCount: intp(2)})
	v1 := bank.SourceLibraries[0].Version

	before, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks: %v", err)
	}
	if st, _ := f.banks.State(ctx, bank.UsageKey); st != itembank.StateConfigured {
		t.Fatalf("state: want=%s got=%s", itembank.StateConfigured, st)
	}

	if _, err := f.author.AddBlock(ctx, f.libKey, authoring.AddBlockInput{BlockType: "problem", BlockID: "E", Data: "<problem><optionresponse/></problem>"}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	report, err := f.banks.Validate(ctx, bank.UsageKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasMessage(report, itembank.SeverityWarning, "out of date") {
		t.Fatalf("want out of date warning, got=%+v", report.Messages)
	}
	if st, _ := f.banks.State(ctx, bank.UsageKey); st != itembank.StateOutOfDate {
		t.Fatalf("state: want=%s got=%s", itembank.StateOutOfDate, st)
	}

	synced, err := f.banks.SyncFromLibraries(ctx, "author", bank.UsageKey)
	if err != nil {
		t.Fatalf("SyncFromLibraries: %v", err)
	}
	if synced.SourceLibraries[0].Version == v1 {
		t.Fatalf("source version not advanced")
	}
	if diff := cmp.Diff(bank.Children, synced.Children[:4]); diff != "" {
		t.Fatalf("child ids changed (-before +after):\n%s", diff)
	}
	if st, _ := f.banks.State(ctx, bank.UsageKey); st != itembank.StateConfigured {
		t.Fatalf("state after sync: want=%s got=%s", itembank.StateConfigured, st)
	}
	after, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks after sync: %v", err)
	}
	if diff := cmp.Diff(keysOf(before), keysOf(after)); diff != "" {
		t.Fatalf("selection not preserved (-before +after):\n%s", diff)
	}
}

func TestUnconfiguredAndMissingLibrary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	empty := f.createBank(t, "empty", itembank.SettingsInput{})
	report, err := f.banks.Validate(ctx, empty.UsageKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasMessage(report, itembank.SeverityNotConfigured, "A library has not yet been selected.") || report.Valid() {
		t.Fatalf("want NOT_CONFIGURED, got=%+v", report.Messages)
	}
	if st, _ := f.banks.State(ctx, empty.UsageKey); st != itembank.StateUnconfigured {
		t.Fatalf("state: want=%s got=%s", itembank.StateUnconfigured, st)
	}

	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources()})
	gone := []itembank.SourceLibrary{{LibraryKey: f.libKey}, {LibraryKey: "library-v1:OrgL+Gone"}}
	_, err = f.banks.UpdateSettings(ctx, "author", bank.UsageKey, itembank.SettingsPatch{SourceLibraries: &gone})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusUnprocessableEntity {
		t.Fatalf("sync with missing library: want 422 got=%v", err)
	}
	view, err := f.banks.Get(ctx, bank.UsageKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(bank.Children, view.Children); diff != "" {
		t.Fatalf("children changed by failed sync (-before +after):\n%s", diff)
	}
	report, err = f.banks.Validate(ctx, bank.UsageKey)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !hasMessage(report, itembank.SeverityError, "invalid") {
		t.Fatalf("want invalid error, got=%+v", report.Messages)
	}
}

func TestCreateWithUnresolvableLibraryLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	usage := "block-v1:X+Y+Z+type@itembank+block@ib"
	_, err := f.banks.Create(ctx, "author", itembank.CreateInput{
		ParentUsageKey: courseRoot,
		BlockID:        "ib",
		Settings:       itembank.SettingsInput{SourceLibraries: []itembank.SourceLibrary{{LibraryKey: "library-v1:OrgL+Missing"}}},
	})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusUnprocessableEntity || ae.Code != "invalid_source_library" {
		t.Fatalf("create with missing library: want=422 invalid_source_library got=%v", err)
	}
	if _, err := f.banks.Get(ctx, usage); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Get after failed create: want=%v got=%v", errs.ErrNotFound, err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	if block, err := f.set.CourseBlocks.GetByUsageKey(dbc, usage); err != nil || block != nil {
		t.Fatalf("course block after failed create: want=nil got=%+v err=%v", block, err)
	}
	if settings, err := f.set.ItemBanks.GetByUsageKey(dbc, usage); err != nil || settings != nil {
		t.Fatalf("settings after failed create: want=nil got=%+v err=%v", settings, err)
	}

	legacy := `<library_content display_name="Old" max_count="2" source_library_id="library-v1:OrgL+Missing"/>`
	if _, err := f.banks.ImportOLX(ctx, "author", itembank.ImportInput{ParentUsageKey: courseRoot, BlockID: "ib"}, strings.NewReader(legacy)); !errors.As(err, &ae) || ae.Status != http.StatusUnprocessableEntity {
		t.Fatalf("import with missing library: want=422 got=%v", err)
	}
	if _, err := f.banks.Get(ctx, usage); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Get after failed import: want=%v got=%v", errs.ErrNotFound, err)
	}

	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources()})
	if bank.UsageKey != usage || len(bank.Children) != 4 {
		t.Fatalf("retry create: want=%s with 4 children got=%s with %d", usage, bank.UsageKey, len(bank.Children))
	}
}

func TestResetSelectedChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locked := f.createBank(t, "locked", itembank.SettingsInput{SourceLibraries: f.sources()})
	if _, err := f.banks.ResetSelectedChildren(ctx, learner, locked.UsageKey); !errors.Is(err, errs.ErrResetNotAllowed) {
		t.Fatalf("reset disabled: want ErrResetNotAllowed got=%v", err)
	}

	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), MaxCount: intp(2), AllowResettingChildren: true})
	assigned, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("GetChildBlocks: %v", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	for _, b := range assigned {
		if err := f.set.BlockStates.Upsert(dbc, &types.LearnerBlockState{
			UserID: learner, UsageKey: b.UsageKey, State: datatypes.JSON([]byte(`{"done":true}`)), Attempts: 1,
		}); err != nil {
			t.Fatalf("seed state: %v", err)
		}
	}
	report, err := f.banks.ResetSelectedChildren(ctx, learner, bank.UsageKey)
	if err != nil {
		t.Fatalf("ResetSelectedChildren: %v", err)
	}
	if len(report.Reset) != 2 || len(report.Failed) != 0 || len(report.Children) != 2 {
		t.Fatalf("report: %+v", report)
	}
	for _, b := range assigned {
		if st, err := f.set.BlockStates.Get(dbc, learner, b.UsageKey); err != nil || st != nil {
			t.Fatalf("state for %s survived reset: %+v err=%v", b.UsageKey, st, err)
		}
	}
	initial := 0
	for _, e := range f.recorder.Named(analytics.EventContentAssigned) {
		if e.Payload["location"] == bank.UsageKey && e.Payload["reason"] == selection.ReasonInitial {
			initial++
		}
	}
	if initial != 2 {
		t.Fatalf("initial assigned events for reset bank: want=2 got=%d", initial)
	}
}

func TestOLXRoundTripDropsComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), MaxCount: intp(3)})

	var buf bytes.Buffer
	if err := f.banks.ExportOLX(ctx, bank.UsageKey, &buf); err != nil {
		t.Fatalf("ExportOLX: %v", err)
	}
	olx := buf.String()
	if !strings.HasPrefix(olx, `<itembank display_name="Bank ib" max_count="3"`) || strings.Count(olx, `url_name=`) != 4 {
		t.Fatalf("export: %s", olx)
	}
	withComment := strings.Replace(olx, "/>\n", "/>\n  <!-- reviewed -->\n", 1)

	doc, err := itembank.ParseOLX(strings.NewReader(withComment))
	if err != nil {
		t.Fatalf("ParseOLX: %v", err)
	}
	if len(doc.Children) != 4 || doc.DisplayName != "Bank ib" || doc.MaxCount != 3 {
		t.Fatalf("parsed: %+v", doc)
	}

	imported, err := f.banks.ImportOLX(ctx, "author", itembank.ImportInput{ParentUsageKey: courseRoot, BlockID: "copy"}, strings.NewReader(withComment))
	if err != nil {
		t.Fatalf("ImportOLX: %v", err)
	}
	if imported.DisplayName != bank.DisplayName || imported.MaxCount != bank.MaxCount || len(imported.Children) != len(bank.Children) {
		t.Fatalf("imported: %+v", imported)
	}
	var again bytes.Buffer
	if err := f.banks.ExportOLX(ctx, imported.UsageKey, &again); err != nil {
		t.Fatalf("ExportOLX imported: %v", err)
	}
	if strings.Contains(again.String(), "<!--") {
		t.Fatalf("comment survived import: %s", again.String())
	}
}

func TestParseOLXLegacyRoot(t *testing.T) {
	in := `<library_content display_name="Old" max_count="2" source_library_id="library-v1:O+L" source_library_version="abc">
  <!-- a comment -->
  <problem url_name="p1"/>
  <html url_name="h1"><p>ignored</p></html>
</library_content>`
	doc, err := itembank.ParseOLX(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseOLX: %v", err)
	}
	want := []itembank.OLXChild{{BlockType: "problem", URLName: "p1"}, {BlockType: "html", URLName: "h1"}}
	if diff := cmp.Diff(want, doc.Children); diff != "" {
		t.Fatalf("children (-want +got):\n%s", diff)
	}
	if len(doc.SourceLibraries) != 1 || doc.SourceLibraries[0].Version != "abc" {
		t.Fatalf("legacy source: %+v", doc.SourceLibraries)
	}
	if _, err := itembank.ParseOLX(strings.NewReader(`<vertical/>`)); err == nil {
		t.Fatalf("unexpected root: expected error")
	}
}

func TestDeleteIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.createBank(t, "ib", itembank.SettingsInput{SourceLibraries: f.sources(), MaxCount: intp(2)})
	if _, err := f.banks.GetChildBlocks(ctx, learner, bank.UsageKey); err != nil {
		t.Fatalf("GetChildBlocks: %v", err)
	}
	if err := f.banks.Delete(ctx, bank.UsageKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if st, err := f.banks.State(ctx, bank.UsageKey); err != nil || st != itembank.StateDeleted {
		t.Fatalf("state: want=%s got=%s err=%v", itembank.StateDeleted, st, err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	if rows, _ := f.set.Selections.ListByItemBank(dbc, bank.UsageKey); len(rows) != 0 {
		t.Fatalf("selections survived delete: %d", len(rows))
	}
	if kids, _ := f.set.CourseBlocks.ListChildren(dbc, bank.UsageKey); len(kids) != 0 {
		t.Fatalf("children survived delete: %d", len(kids))
	}
	var ae *apierr.Error
	if _, err := f.banks.Get(ctx, bank.UsageKey); !errors.As(err, &ae) || ae.Status != http.StatusNotFound {
		t.Fatalf("Get after delete: want 404 got=%v", err)
	}
}

func TestSettingsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bank := f.createBank(t, "ib", itembank.SettingsInput{})
	for name, patch := range map[string]itembank.SettingsPatch{
		"bad mode":      {Mode: strp("sometimes")},
		"bad max_count": {MaxCount: intp(-2)},
		"bad library":   {SourceLibraries: &[]itembank.SourceLibrary{{LibraryKey: "course-v1:A+B+C"}}},
	} {
		var ae *apierr.Error
		if _, err := f.banks.UpdateSettings(ctx, "author", bank.UsageKey, patch); !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
			t.Fatalf("%s: want 400 got=%v", name, err)
		}
	}
}
