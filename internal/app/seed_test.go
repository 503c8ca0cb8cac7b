package app

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/contentlib/internal/data/repos"
	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

const fixturesYAML = `
libraries:
  - org: OrgL
    slug: Pool
    display_name: Pool
    blocks:
      - {type: problem, id: A, display_name: Sum, data: "<problem><multiplechoiceresponse/></problem>"}
      - {type: problem, id: B, display_name: Product, data: "<problem><optionresponse/></problem>"}
courses:
  - org: X
    course: Y
    run: Z
    display_name: Intro
    blocks:
      - {type: chapter, id: week1, display_name: Week 1}
      - {parent: week1, type: vertical, id: unit1, display_name: Unit 1}
itembanks:
  - course: course-v1:X+Y+Z
    parent: unit1
    id: bank
    display_name: Practice
    libraries: [library-v1:OrgL+Pool]
    max_count: 1
taxonomies:
  - name: Subject
    tags:
      - {value: Math}
      - {value: Algebra, parent: Math}
    objects:
      lib-block-v1:OrgL+Pool+type@problem+block@A: [Algebra]
roles:
  - {user_id: staff-1, role: global_staff}
  - {user_id: author-1, role: org_staff, org: OrgL}
`

func TestSeedLoadsFixturesInOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	svcs, err := wireServices(db, log, Config{}, rs, Clients{}, observability.NewMetrics())
	if err != nil {
		t.Fatalf("wireServices: %v", err)
	}

	f, err := ParseFixtures(strings.NewReader(fixturesYAML))
	if err != nil {
		t.Fatalf("ParseFixtures: %v", err)
	}
	rep, err := svcs.Seed(ctx, rs, f)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	want := &SeedReport{
		Libraries: []string{"library-v1:OrgL+Pool"},
		Courses:   []string{"course-v1:X+Y+Z"},
		ItemBanks: []string{"block-v1:X+Y+Z+type@itembank+block@bank"},
		Tagged:    1,
		Roles:     2,
	}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Fatalf("report (-want +got):\n%s", diff)
	}

	view, err := svcs.ItemBanks.Get(ctx, rep.ItemBanks[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.Children) != 2 || view.MaxCount != 1 {
		t.Fatalf("itembank: children=%v max_count=%d", view.Children, view.MaxCount)
	}

	roles, err := rs.UserRoles.ListByUser(dbctx.Context{Ctx: ctx}, "author-1")
	if err != nil || len(roles) != 1 || roles[0].Org != "OrgL" {
		t.Fatalf("roles for author-1: %v err=%v", roles, err)
	}

	queued, err := rs.JobRuns.ExistsQueued(dbctx.Context{Ctx: ctx}, queue.TypeSearchUpdateTags, queue.EntityBlock, "lib-block-v1:OrgL+Pool+type@problem+block@A")
	if err != nil || !queued {
		t.Fatalf("tags update job: queued=%v err=%v", queued, err)
	}
}

func TestParseFixturesRejectsUnknownFields(t *testing.T) {
	if _, err := ParseFixtures(strings.NewReader("libraries:\n  - org: A\n    colour: red\n")); err == nil {
		t.Fatalf("want error for unknown field")
	}
}
