package selection

import (
	"math/rand"

	types "github.com/yungbote/contentlib/internal/domain"
)

const (
	ReasonInitial   = "initial"
	ReasonOverlimit = "overlimit"
	ReasonInvalid   = "invalid"
)

// Change is the outcome of reconciling a learner's previous selection with
// the current children and limits.
type Change struct {
	Previous         []string
	Selected         []string
	Added            []string
	RemovedInvalid   []string
	RemovedOverlimit []string
	// Duplicates counts repeated ids dropped from the stored selection. The
	// id stays selected, so this rewrites the row without emitting events.
	Duplicates int
}

// Plan computes the next selection. maxCount -1 means every child. Over the
// limit, the ids to drop are drawn uniformly from the retained ids; under it,
// new ids come in children order (first) or uniformly sampled (random).
func Plan(children []string, maxCount int, mode string, previous []string, rnd *rand.Rand) Change {
	pool := make(map[string]bool, len(children))
	for _, id := range children {
		pool[id] = true
	}

	ch := Change{Previous: append([]string(nil), previous...)}
	kept := make([]string, 0, len(previous))
	seen := map[string]bool{}
	for _, id := range previous {
		if seen[id] {
			ch.Duplicates++
			continue
		}
		seen[id] = true
		if pool[id] {
			kept = append(kept, id)
		} else {
			ch.RemovedInvalid = append(ch.RemovedInvalid, id)
		}
	}

	target := len(pool)
	if maxCount >= 0 && maxCount < target {
		target = maxCount
	}

	if len(kept) > target {
		drop := map[int]bool{}
		for _, i := range rnd.Perm(len(kept))[:len(kept)-target] {
			drop[i] = true
		}
		retained := make([]string, 0, target)
		for i, id := range kept {
			if drop[i] {
				ch.RemovedOverlimit = append(ch.RemovedOverlimit, id)
				continue
			}
			retained = append(retained, id)
		}
		kept = retained
	}

	if need := target - len(kept); need > 0 {
		inKept := make(map[string]bool, len(kept))
		for _, id := range kept {
			inKept[id] = true
		}
		candidates := make([]string, 0, len(children))
		for _, id := range children {
			if !inKept[id] {
				inKept[id] = true
				candidates = append(candidates, id)
			}
		}
		if mode != types.ModeFirst {
			rnd.Shuffle(len(candidates), func(i, j int) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			})
		}
		if need > len(candidates) {
			need = len(candidates)
		}
		ch.Added = append(ch.Added, candidates[:need]...)
		kept = append(kept, ch.Added...)
	}

	ch.Selected = kept
	return ch
}

func (c Change) Removed() []string {
	if len(c.RemovedInvalid) == 0 {
		return c.RemovedOverlimit
	}
	return append(append([]string(nil), c.RemovedInvalid...), c.RemovedOverlimit...)
}

func (c Change) Changed() bool {
	return len(c.Added) > 0 || len(c.RemovedInvalid) > 0 || len(c.RemovedOverlimit) > 0
}

// NeedsWrite reports whether the stored selection differs from Selected.
func (c Change) NeedsWrite() bool {
	return c.Changed() || c.Duplicates > 0
}

// RemovedReason names the cause that removed more ids; ties go to invalid.
func (c Change) RemovedReason() string {
	if len(c.RemovedOverlimit) > len(c.RemovedInvalid) {
		return ReasonOverlimit
	}
	if len(c.RemovedInvalid) > 0 {
		return ReasonInvalid
	}
	return ""
}

// AssignedReason is initial only when the learner had nothing selected.
func (c Change) AssignedReason() string {
	if len(c.Previous) == 0 {
		return ReasonInitial
	}
	return ""
}
