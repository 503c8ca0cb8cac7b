package queue

import (
	"context"
	"testing"

	jobsrepo "github.com/yungbote/contentlib/internal/data/repos/jobs"
	"github.com/yungbote/contentlib/internal/data/repos/testutil"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

func TestEnqueueUpsertDedupesQueuedJobs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := jobsrepo.NewJobRunRepo(db, log)
	svc := NewService(db, log, repo)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	key := "lib-block-v1:QueueOrg+QueueLib+type@html+block@intro"
	if err := svc.EnqueueUpsert(dbc, key, key); err != nil {
		t.Fatalf("EnqueueUpsert: %v", err)
	}
	if err := svc.EnqueueUpsert(dbc, key); err != nil {
		t.Fatalf("EnqueueUpsert again: %v", err)
	}
	if err := svc.EnqueueDelete(dbc, key); err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	var n int64
	if err := tx.Table("job_run").Where("entity_id = ? AND job_type = ?", key, TypeSearchUpsertBlock).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("queued upserts: want=1 got=%d", n)
	}
	if err := tx.Table("job_run").Where("entity_id = ? AND job_type = ?", key, TypeSearchDeleteBlock).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("queued deletes: want=1 got=%d", n)
	}
}

func TestEnqueueRebuildRejectsDuplicate(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	svc := NewService(db, log, jobsrepo.NewJobRunRepo(db, log))
	dbc := dbctx.Context{Ctx: context.Background()}

	job, ok, err := svc.EnqueueRebuild(dbc, "admin")
	if err != nil || !ok || job == nil {
		t.Fatalf("first EnqueueRebuild: job=%v ok=%v err=%v", job, ok, err)
	}
	if _, ok, err := svc.EnqueueRebuild(dbc, "admin"); err != nil || ok {
		t.Fatalf("second EnqueueRebuild: want ok=false got ok=%v err=%v", ok, err)
	}
	got, err := svc.Get(dbc, job.ID)
	if err != nil || got == nil || got.RequestedBy != "admin" {
		t.Fatalf("Get: got=%+v err=%v", got, err)
	}
}
