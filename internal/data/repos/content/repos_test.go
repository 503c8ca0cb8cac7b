package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
)

func TestLibraryRepoGetMissingReturnsNil(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewLibraryRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	got, err := repo.GetByKey(dbc, "library-v1:Nope+Missing")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if got != nil {
		t.Fatalf("GetByKey: want=nil got=%+v", got)
	}

	now := time.Now()
	lib := &types.Library{
		LibraryKey:     "library-v1:OrgX+Lib" + uuid.NewString()[:8],
		Org:            "OrgX",
		Slug:           "lib",
		DisplayName:    "Lib",
		CurrentVersion: "v1",
		VersionSeq:     1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.Create(dbc, lib); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AdvanceVersion(dbc, lib.ID, "v2", 2); err != nil {
		t.Fatalf("AdvanceVersion: %v", err)
	}
	got, err = repo.GetByKey(dbc, lib.LibraryKey)
	if err != nil || got == nil {
		t.Fatalf("GetByKey after create: got=%v err=%v", got, err)
	}
	if got.CurrentVersion != "v2" || got.VersionSeq != 2 {
		t.Fatalf("AdvanceVersion: want=v2/2 got=%s/%d", got.CurrentVersion, got.VersionSeq)
	}
}

func TestCourseBlockRepoChildrenOrderAndNextPosition(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewCourseBlockRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	parent := "block-v1:X+Y+Z+type@vertical+block@" + uuid.NewString()[:8]
	next, err := repo.NextPosition(dbc, parent)
	if err != nil {
		t.Fatalf("NextPosition empty: %v", err)
	}
	if next != 0 {
		t.Fatalf("NextPosition empty: want=0 got=%d", next)
	}

	now := time.Now()
	mk := func(id string, pos int) *types.CourseBlock {
		return &types.CourseBlock{
			CourseKey:      "course-v1:X+Y+Z",
			UsageKey:       "block-v1:X+Y+Z+type@html+block@" + id,
			BlockType:      "html",
			BlockID:        id,
			ParentUsageKey: parent,
			Position:       pos,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	suffix := uuid.NewString()[:8]
	if _, err := repo.Create(dbc, []*types.CourseBlock{mk("b"+suffix, 1), mk("a"+suffix, 0)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	children, err := repo.ListChildren(dbc, parent)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 2 || children[0].BlockID != "a"+suffix || children[1].BlockID != "b"+suffix {
		t.Fatalf("ListChildren order: got=%v", children)
	}
	next, err = repo.NextPosition(dbc, parent)
	if err != nil {
		t.Fatalf("NextPosition: %v", err)
	}
	if next != 2 {
		t.Fatalf("NextPosition: want=2 got=%d", next)
	}
}

func TestLearnerSelectionRepoInsertConflictAndCAS(t *testing.T) {
	db := testutil.DB(t)
	repo := NewLearnerSelectionRepo(db, testutil.Logger(t))
	// A failed insert aborts a Postgres transaction, so this test runs without one.
	dbc := dbctx.Context{Ctx: context.Background()}

	user := "learner-" + uuid.NewString()[:8]
	bank := "block-v1:X+Y+Z+type@itembank+block@ib"

	row, err := repo.Insert(dbc, user, bank, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := repo.Insert(dbc, user, bank, []string{"c"}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second Insert: want ErrConflict got=%v", err)
	}

	ok, err := repo.CompareAndSwap(dbc, row.ID, row.Revision, []string{"a"})
	if err != nil || !ok {
		t.Fatalf("CompareAndSwap: ok=%v err=%v", ok, err)
	}
	ok, err = repo.CompareAndSwap(dbc, row.ID, row.Revision, []string{"b"})
	if err != nil {
		t.Fatalf("stale CompareAndSwap: %v", err)
	}
	if ok {
		t.Fatalf("stale CompareAndSwap should not apply")
	}

	got, err := repo.Get(dbc, user, bank)
	if err != nil || got == nil {
		t.Fatalf("Get: got=%v err=%v", got, err)
	}
	if sel := DecodeSelected(got); len(sel) != 1 || sel[0] != "a" {
		t.Fatalf("selected: want=[a] got=%v", sel)
	}
	if got.Revision != row.Revision+1 {
		t.Fatalf("revision: want=%d got=%d", row.Revision+1, got.Revision)
	}
}

func TestLearnerBlockStateRepoUpsertAndDelete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewLearnerBlockStateRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	user := "learner-" + uuid.NewString()[:8]
	key := "block-v1:X+Y+Z+type@problem+block@p1"
	if err := repo.Upsert(dbc, &types.LearnerBlockState{UserID: user, UsageKey: key, Attempts: 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(dbc, &types.LearnerBlockState{UserID: user, UsageKey: key, Attempts: 3}); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	st, err := repo.Get(dbc, user, key)
	if err != nil || st == nil {
		t.Fatalf("Get: st=%v err=%v", st, err)
	}
	if st.Attempts != 3 {
		t.Fatalf("attempts: want=3 got=%d", st.Attempts)
	}
	n, err := repo.Delete(dbc, user, key)
	if err != nil || n != 1 {
		t.Fatalf("Delete: n=%d err=%v", n, err)
	}
}
