package blocktypes

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/contentlib/internal/data/repos"
	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(BlockType{Name: "html"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(BlockType{Name: "html"}); err == nil {
		t.Fatalf("duplicate register: expected error")
	}
	if err := r.Register(BlockType{}); err == nil {
		t.Fatalf("empty name: expected error")
	}
}

func TestDefaultCapabilities(t *testing.T) {
	r := Default(nil)
	if !r.CanReset(types.BlockTypeProblem) || r.CanReset("html") || r.CanReset("unknown") {
		t.Fatalf("CanReset wrong for defaults: %v", r.Names())
	}
	if !r.IsContainer("vertical") || r.IsContainer(types.BlockTypeProblem) {
		t.Fatalf("IsContainer wrong for defaults")
	}
	want := []string{"chapter", "html", "itembank", "problem", "sequential", "vertical", "video"}
	if diff := cmp.Diff(want, r.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestProblemResetClearsLearnerState(t *testing.T) {
	db := testutil.SQLite(t)
	set := repos.NewSet(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	key := "block-v1:X+Y+Z+type@problem+block@p1"

	for _, user := range []string{"u1", "u2"} {
		if err := set.BlockStates.Upsert(dbc, &types.LearnerBlockState{
			ID:       uuid.New(),
			UserID:   user,
			UsageKey: key,
			State:    datatypes.JSON([]byte(`{"answer":"b"}`)),
			Attempts: 2,
		}); err != nil {
			t.Fatalf("seed state: %v", err)
		}
	}

	bt, _ := Default(set.BlockStates).Get(types.BlockTypeProblem)
	if err := bt.Reset(ctx, "u1", &types.CourseBlock{UsageKey: key}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if st, err := set.BlockStates.Get(dbc, "u1", key); err != nil || st != nil {
		t.Fatalf("u1 state after reset: want nil got=%+v err=%v", st, err)
	}
	if st, err := set.BlockStates.Get(dbc, "u2", key); err != nil || st == nil {
		t.Fatalf("u2 state must survive: got=%+v err=%v", st, err)
	}
}
