package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/yungbote/contentlib/internal/data/repos/jobs"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/ctxutil"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

/*
Context is the handle a handler gets for one claimed job run.
Handlers never touch job_run directly; they report through Progress, Fail
and Succeed so the lifecycle rules stay in one place:
  - Ctx carries cancellation and the trace ids copied from the payload.
  - Job is the in-memory row; it is kept in step with every write.
  - A terminal write (Fail or Succeed) clears locked_at.
*/
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *types.JobRun
	Repo jobsrepo.JobRunRepo
	Log  *logger.Logger

	payload map[string]any
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobsrepo.JobRunRepo, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{Ctx: ctx, DB: db, Job: job, Repo: repo}
	if job != nil {
		log = log.With("job_id", job.ID, "job_type", job.JobType)
	}
	c.Log = log
	if err := c.decodePayload(); err != nil {
		c.Log.Warn("job payload is not a JSON object", "error", err)
	}
	c.applyTraceData()
	return c
}

// decodePayload leaves an empty map behind on any failure so Payload never
// returns nil.
func (c *Context) decodePayload() error {
	c.payload = map[string]any{}
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		return err
	}
	if m != nil {
		c.payload = m
	}
	return nil
}

func (c *Context) applyTraceData() {
	if c.Ctx == nil {
		c.Ctx = context.Background()
	}
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString returns a trimmed string field, or "" when absent.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) dbc() dbctx.Context {
	return dbctx.Context{Ctx: context.WithoutCancel(c.Ctx)}
}

// Heartbeat keeps a long-running job from being reclaimed as stale.
func (c *Context) Heartbeat() {
	if c.Repo == nil || c.Job == nil {
		return
	}
	if err := c.Repo.Heartbeat(c.dbc(), c.Job.ID); err != nil {
		c.Log.Warn("job heartbeat failed", "error", err)
	}
}

// Progress records a non-terminal stage and refreshes the heartbeat.
func (c *Context) Progress(stage string) {
	now := time.Now()
	c.update(map[string]interface{}{"stage": stage, "heartbeat_at": now, "updated_at": now})
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

// Fail marks the run failed. The worker retries it until attempts run out.
func (c *Context) Fail(stage string, err error) {
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.update(map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         stage,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.Log.Warn("Job failed", "stage", stage, "attempts", c.attempts(), "error", msg)
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(stage string, result any) {
	now := time.Now()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	c.update(map[string]interface{}{
		"status":       types.JobStatusSucceeded,
		"stage":        stage,
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if c.Job != nil {
		c.Job.Status = types.JobStatusSucceeded
		c.Job.Stage = stage
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
}

// Finished reports whether a terminal state has been recorded.
func (c *Context) Finished() bool {
	return c.Job != nil && (c.Job.Status == types.JobStatusSucceeded || c.Job.Status == types.JobStatusFailed)
}

func (c *Context) attempts() int {
	if c.Job == nil {
		return 0
	}
	return c.Job.Attempts
}

func (c *Context) update(updates map[string]interface{}) {
	if c.Repo == nil || c.Job == nil {
		return
	}
	if err := c.Repo.UpdateFields(c.dbc(), c.Job.ID, updates); err != nil {
		c.Log.Error("job state write failed", "error", err)
	}
}
