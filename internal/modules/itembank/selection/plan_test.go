package selection

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	types "github.com/yungbote/contentlib/internal/domain"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestPlanSizeLaw(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []struct {
		children int
		max      int
		want     int
	}{
		{4, 2, 2},
		{4, 4, 4},
		{4, 9, 4},
		{4, -1, 4},
		{0, 3, 0},
		{4, 0, 0},
	} {
		ch := Plan(ids(tc.children), tc.max, types.ModeRandom, nil, rnd)
		if len(ch.Selected) != tc.want {
			t.Fatalf("children=%d max=%d: want=%d got=%d", tc.children, tc.max, tc.want, len(ch.Selected))
		}
	}
}

func TestPlanFirstModeTakesChildrenOrder(t *testing.T) {
	ch := Plan(ids(5), 3, types.ModeFirst, nil, rand.New(rand.NewSource(1)))
	if diff := cmp.Diff([]string{"a", "b", "c"}, ch.Selected); diff != "" {
		t.Fatalf("first mode (-want +got):\n%s", diff)
	}
	if ch.AssignedReason() != ReasonInitial {
		t.Fatalf("assigned reason: want=%q got=%q", ReasonInitial, ch.AssignedReason())
	}
}

func TestPlanIsStableWhenInputsUnchanged(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	first := Plan(ids(6), 3, types.ModeRandom, nil, rnd)
	again := Plan(ids(6), 3, types.ModeRandom, first.Selected, rnd)
	if again.Changed() {
		t.Fatalf("unchanged inputs produced a change: %+v", again)
	}
	if diff := cmp.Diff(first.Selected, again.Selected); diff != "" {
		t.Fatalf("selection drifted (-first +again):\n%s", diff)
	}
}

func TestPlanRetainsValidPreviousIDs(t *testing.T) {
	prev := []string{"b", "d"}
	ch := Plan(ids(6), 4, types.ModeRandom, prev, rand.New(rand.NewSource(3)))
	if len(ch.Selected) != 4 {
		t.Fatalf("size: want=4 got=%d", len(ch.Selected))
	}
	if ch.Selected[0] != "b" || ch.Selected[1] != "d" {
		t.Fatalf("previous ids not retained: %v", ch.Selected)
	}
	if ch.AssignedReason() != "" {
		t.Fatalf("top-up must not be initial, got=%q", ch.AssignedReason())
	}
}

func TestPlanRepairsInvalidIDs(t *testing.T) {
	ch := Plan([]string{"a", "b", "c"}, 2, types.ModeFirst, []string{"a", "gone"}, rand.New(rand.NewSource(1)))
	if diff := cmp.Diff([]string{"gone"}, ch.RemovedInvalid); diff != "" {
		t.Fatalf("invalid (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ch.Selected); diff != "" {
		t.Fatalf("selected (-want +got):\n%s", diff)
	}
	if ch.RemovedReason() != ReasonInvalid {
		t.Fatalf("reason: want=%q got=%q", ReasonInvalid, ch.RemovedReason())
	}
}

func TestPlanCollapsesDuplicateStoredIDs(t *testing.T) {
	ch := Plan([]string{"a", "b", "c"}, 2, types.ModeFirst, []string{"a", "b", "a"}, rand.New(rand.NewSource(1)))
	if diff := cmp.Diff([]string{"a", "b"}, ch.Selected); diff != "" {
		t.Fatalf("selected (-want +got):\n%s", diff)
	}
	if ch.Duplicates != 1 {
		t.Fatalf("duplicates: want=1 got=%d", ch.Duplicates)
	}
	if ch.Changed() || !ch.NeedsWrite() {
		t.Fatalf("duplicate-only change: want Changed=false NeedsWrite=true got Changed=%v NeedsWrite=%v", ch.Changed(), ch.NeedsWrite())
	}
	if len(ch.RemovedInvalid) != 0 {
		t.Fatalf("duplicates reported as invalid: %v", ch.RemovedInvalid)
	}
}

func TestPlanRemovedReasonDominantCause(t *testing.T) {
	children := []string{"a", "b", "c", "d"}
	rnd := rand.New(rand.NewSource(1))

	// one invalid, two over the limit
	ch := Plan(children, 1, types.ModeFirst, []string{"a", "b", "c", "x"}, rnd)
	if ch.RemovedReason() != ReasonOverlimit {
		t.Fatalf("overlimit dominant: got=%q (%+v)", ch.RemovedReason(), ch)
	}
	// one of each
	ch = Plan(children, 1, types.ModeFirst, []string{"a", "b", "x"}, rnd)
	if ch.RemovedReason() != ReasonInvalid {
		t.Fatalf("tie: want=%q got=%q", ReasonInvalid, ch.RemovedReason())
	}
}

func TestPlanMaxCountZeroDropsEverything(t *testing.T) {
	ch := Plan(ids(3), 0, types.ModeRandom, []string{"a", "b"}, rand.New(rand.NewSource(1)))
	if len(ch.Selected) != 0 || len(ch.RemovedOverlimit) != 2 {
		t.Fatalf("max_count 0: got=%+v", ch)
	}
	if ch.RemovedReason() != ReasonOverlimit {
		t.Fatalf("reason: want=%q got=%q", ReasonOverlimit, ch.RemovedReason())
	}
}

func TestPlanOverlimitRemovalIsUniform(t *testing.T) {
	const trials = 20000
	prev := []string{"a", "b", "c", "d", "e"}
	rnd := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		ch := Plan(prev, len(prev)-1, types.ModeRandom, prev, rnd)
		if len(ch.RemovedOverlimit) != 1 {
			t.Fatalf("trial %d: want one removal got=%v", i, ch.RemovedOverlimit)
		}
		counts[ch.RemovedOverlimit[0]]++
	}
	expected := float64(trials) / float64(len(prev))
	chi2 := 0.0
	for _, id := range prev {
		d := float64(counts[id]) - expected
		chi2 += d * d / expected
	}
	// 4 degrees of freedom; p=0.001 critical value is 18.47.
	if chi2 > 18.47 || math.IsNaN(chi2) {
		t.Fatalf("removal not uniform: chi2=%.2f counts=%v", chi2, counts)
	}
}
