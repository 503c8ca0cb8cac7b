package authoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/contentlib/internal/data/repos"
	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/modules/library/authoring"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

func newUsecases(t *testing.T) (authoring.Usecases, repos.Set, store.Store) {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	uc := authoring.New(authoring.UsecasesDeps{
		DB:           db,
		Log:          log,
		Libraries:    set.Libraries,
		Versions:     set.Versions,
		Definitions:  set.Definitions,
		CourseBlocks: set.CourseBlocks,
		Index:        queue.NewService(db, log, set.JobRuns),
	})
	return uc, set, store.New(log, set.Libraries, set.Versions, set.Definitions)
}

func TestAddBlockAdvancesVersion(t *testing.T) {
	ctx := context.Background()
	uc, set, st := newUsecases(t)

	lib, err := uc.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: "OrgX", Slug: "Lib1", DisplayName: "Library One"})
	if err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	v1 := lib.CurrentVersion

	res, err := uc.AddBlock(ctx, lib.LibraryKey, authoring.AddBlockInput{BlockType: "problem", BlockID: "p1", DisplayName: "P1", Data: "<problem/>"})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if res.UsageKey != "lib-block-v1:OrgX+Lib1+type@problem+block@p1" {
		t.Fatalf("usage key: got=%q", res.UsageKey)
	}
	if res.Library.CurrentVersion == v1 {
		t.Fatalf("version did not advance")
	}

	dbc := dbctx.Context{Ctx: ctx}
	head, err := st.GetLibrary(dbc, keys.MustParseLibraryKey(lib.LibraryKey))
	if err != nil || head == nil {
		t.Fatalf("GetLibrary head: lib=%v err=%v", head, err)
	}
	if diff := cmp.Diff([]string{"p1"}, head.Children); diff != "" {
		t.Fatalf("children (-want +got):\n%s", diff)
	}

	old, err := st.GetLibrary(dbc, keys.MustParseLibraryKey(lib.LibraryKey).ForVersion(v1))
	if err != nil || old == nil {
		t.Fatalf("GetLibrary v1: lib=%v err=%v", old, err)
	}
	if len(old.Children) != 0 {
		t.Fatalf("v1 must stay empty, got=%v", old.Children)
	}

	n, err := set.JobRuns.CountByStatus(dbc, queue.TypeSearchUpsertBlock)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if n["queued"] != 1 {
		t.Fatalf("queued upserts: want=1 got=%d", n["queued"])
	}

	if _, err := uc.AddBlock(ctx, lib.LibraryKey, authoring.AddBlockInput{BlockType: "problem", BlockID: "p1"}); err == nil {
		t.Fatalf("duplicate block id: expected conflict")
	}
	if _, err := uc.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: "OrgX", Slug: "Lib1"}); err == nil {
		t.Fatalf("duplicate library: expected conflict")
	}
}

func TestUpdateBlockEditsDefinitionInPlace(t *testing.T) {
	ctx := context.Background()
	uc, set, st := newUsecases(t)
	lib, err := uc.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: "OrgX", Slug: "Lib2"})
	if err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	if _, err := uc.AddBlock(ctx, lib.LibraryKey, authoring.AddBlockInput{BlockType: "html", BlockID: "h1", Data: "<p>old</p>"}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	before, _ := st.GetLibrary(dbc, keys.MustParseLibraryKey(lib.LibraryKey))
	blockBefore, _ := st.Block(dbc, before, "h1")

	data := "<p>new</p>"
	name := "Intro"
	res, err := uc.UpdateBlock(ctx, lib.LibraryKey, "h1", authoring.UpdateBlockInput{Data: &data, DisplayName: &name})
	if err != nil {
		t.Fatalf("UpdateBlock: %v", err)
	}
	if res.Library.CurrentVersion == before.Version {
		t.Fatalf("content edit must advance the version")
	}
	after, _ := st.GetLibrary(dbc, keys.MustParseLibraryKey(lib.LibraryKey))
	blockAfter, _ := st.Block(dbc, after, "h1")
	if blockAfter.DefinitionID != blockBefore.DefinitionID {
		t.Fatalf("definition pointer changed: before=%s after=%s", blockBefore.DefinitionID, blockAfter.DefinitionID)
	}
	if blockAfter.DisplayName != "Intro" {
		t.Fatalf("display name: want=Intro got=%q", blockAfter.DisplayName)
	}
	def, err := set.Definitions.GetByID(dbc, blockAfter.DefinitionID)
	if err != nil || def == nil || def.Data != data {
		t.Fatalf("definition data: def=%+v err=%v", def, err)
	}
}

func TestDeleteBlockRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	uc, _, st := newUsecases(t)
	lib, err := uc.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: "OrgX", Slug: "Lib3"})
	if err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	for _, in := range []authoring.AddBlockInput{
		{BlockType: "vertical", BlockID: "unit"},
		{BlockType: "problem", BlockID: "q1", ParentID: "unit"},
		{BlockType: "html", BlockID: "keep"},
	} {
		if _, err := uc.AddBlock(ctx, lib.LibraryKey, in); err != nil {
			t.Fatalf("AddBlock(%s): %v", in.BlockID, err)
		}
	}
	if _, err := uc.DeleteBlock(ctx, lib.LibraryKey, "unit"); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	head, _ := st.GetLibrary(dbc, keys.MustParseLibraryKey(lib.LibraryKey))
	if diff := cmp.Diff([]string{"keep"}, head.Children); diff != "" {
		t.Fatalf("children (-want +got):\n%s", diff)
	}
	if b, _ := st.Block(dbc, head, "q1"); b != nil {
		t.Fatalf("nested block survived delete")
	}

	_, err = uc.DeleteBlock(ctx, lib.LibraryKey, "unit")
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != "block_not_found" {
		t.Fatalf("delete missing block: want block_not_found got=%v", err)
	}
}
