package store_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/contentlib/internal/data/repos"
	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	"github.com/yungbote/contentlib/internal/modules/library/authoring"
	"github.com/yungbote/contentlib/internal/modules/library/keys"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

func seed(t *testing.T) (store.Store, keys.LibraryKey) {
	t.Helper()
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	uc := authoring.New(authoring.UsecasesDeps{
		DB: db, Log: log,
		Libraries: set.Libraries, Versions: set.Versions, Definitions: set.Definitions,
	})
	lib, err := uc.CreateLibrary(ctx, authoring.CreateLibraryInput{Org: "OrgS", Slug: "Pool", DisplayName: "Pool"})
	if err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	for _, in := range []authoring.AddBlockInput{
		{BlockType: "problem", BlockID: "mc1", Data: "<problem><multiplechoiceresponse/></problem>"},
		{BlockType: "problem", BlockID: "opt1", Data: "<problem><optionresponse/></problem>"},
		{BlockType: "html", BlockID: "h1", Data: "<p>hi</p>"},
		{BlockType: "vertical", BlockID: "unit"},
		{BlockType: "problem", BlockID: "nested", ParentID: "unit", Data: "<problem><optionresponse/></problem>"},
	} {
		if _, err := uc.AddBlock(ctx, lib.LibraryKey, in); err != nil {
			t.Fatalf("AddBlock(%s): %v", in.BlockID, err)
		}
	}
	return store.New(log, set.Libraries, set.Versions, set.Definitions), keys.MustParseLibraryKey(lib.LibraryKey)
}

func childIDs(in []store.FilteredChild) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, c.ID)
	}
	return out
}

func TestIterFilteredChildren(t *testing.T) {
	st, key := seed(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	lib, err := st.GetLibrary(dbc, key)
	if err != nil || lib == nil {
		t.Fatalf("GetLibrary: lib=%v err=%v", lib, err)
	}

	all, err := st.IterFilteredChildren(dbc, lib, "ANY")
	if err != nil {
		t.Fatalf("IterFilteredChildren ANY: %v", err)
	}
	if diff := cmp.Diff([]string{"mc1", "opt1", "h1", "unit"}, childIDs(all)); diff != "" {
		t.Fatalf("ANY (-want +got):\n%s", diff)
	}

	mc, err := st.IterFilteredChildren(dbc, lib, "multiplechoice")
	if err != nil {
		t.Fatalf("IterFilteredChildren multiplechoice: %v", err)
	}
	if diff := cmp.Diff([]string{"mc1"}, childIDs(mc)); diff != "" {
		t.Fatalf("multiplechoice (-want +got):\n%s", diff)
	}

	// The vertical holds an optionresponse problem but is not itself a problem.
	opt, _ := st.IterFilteredChildren(dbc, lib, "optionresponse")
	if diff := cmp.Diff([]string{"opt1"}, childIDs(opt)); diff != "" {
		t.Fatalf("optionresponse (-want +got):\n%s", diff)
	}

	desc, err := st.Descendants(dbc, lib, "unit")
	if err != nil || len(desc) != 1 || desc[0].ID != "nested" {
		t.Fatalf("Descendants: got=%v err=%v", desc, err)
	}
	if diff := cmp.Diff([]string{"optionresponse"}, desc[0].ProblemTypes); diff != "" {
		t.Fatalf("nested problem types (-want +got):\n%s", diff)
	}
}

func TestMissingLibraryIsNil(t *testing.T) {
	st, key := seed(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	missing := keys.LibraryKey{Org: "Nobody", Library: "Nothing"}
	if lib, err := st.GetLibrary(dbc, missing); err != nil || lib != nil {
		t.Fatalf("GetLibrary missing: want nil,nil got=%v,%v", lib, err)
	}
	if v, err := st.GetLibraryVersion(dbc, missing); err != nil || v != "" {
		t.Fatalf("GetLibraryVersion missing: want \"\" got=%q err=%v", v, err)
	}
	if _, ok, err := st.GetLibraryDisplayName(dbc, missing); err != nil || ok {
		t.Fatalf("GetLibraryDisplayName missing: ok=%v err=%v", ok, err)
	}
	if lib, err := st.GetLibrary(dbc, key.ForVersion("deadbeef")); err != nil || lib != nil {
		t.Fatalf("GetLibrary missing version: want nil,nil got=%v,%v", lib, err)
	}

	name, ok, err := st.GetLibraryDisplayName(dbc, key)
	if err != nil || !ok || name != "Pool" {
		t.Fatalf("GetLibraryDisplayName: name=%q ok=%v err=%v", name, ok, err)
	}
	v, err := st.GetLibraryVersion(dbc, key)
	if err != nil || v == "" {
		t.Fatalf("GetLibraryVersion: v=%q err=%v", v, err)
	}
}
