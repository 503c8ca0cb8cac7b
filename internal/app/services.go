package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/contentlib/internal/analytics"
	"github.com/yungbote/contentlib/internal/data/repos"
	"github.com/yungbote/contentlib/internal/jobs/pipeline/searchindex"
	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/jobs/runtime"
	"github.com/yungbote/contentlib/internal/jobs/worker"
	"github.com/yungbote/contentlib/internal/modules/course"
	"github.com/yungbote/contentlib/internal/modules/itembank"
	"github.com/yungbote/contentlib/internal/modules/itembank/blocktypes"
	"github.com/yungbote/contentlib/internal/modules/itembank/selection"
	"github.com/yungbote/contentlib/internal/modules/library/authoring"
	"github.com/yungbote/contentlib/internal/modules/library/copier"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/modules/search"
	"github.com/yungbote/contentlib/internal/modules/tagging"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/locks"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/temporalx/rebuild"
)

type Services struct {
	Queue     queue.Service
	Store     store.Store
	Libraries authoring.Usecases
	Courses   course.Usecases
	ItemBanks itembank.Usecases
	Tagging   tagging.Usecases
	Projector *search.Projector
	Rebuild   *rebuild.Scheduler
	JobWorker *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, rs repos.Set, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	q := queue.NewService(db, log, rs.JobRuns)
	st := store.New(log, rs.Libraries, rs.Versions, rs.Definitions)

	// Analytics
	publisher := analytics.NewLogPublisher(log)
	if clients.Redis != nil {
		rp, err := analytics.NewRedisPublisher(log, clients.Redis, cfg.AnalyticsChannel)
		if err != nil {
			return Services{}, err
		}
		publisher = analytics.Fanout(publisher, rp)
	}

	// Locks
	var locker locks.Locker = locks.NewLocalLocker()
	if clients.Redis != nil {
		locker = locks.NewRedisLocker(clients.Redis, "contentlib:lock:")
	}

	tags := tagging.New(tagging.UsecasesDeps{
		DB:         db,
		Log:        log,
		Taxonomies: rs.Taxonomies,
		Tags:       rs.Tags,
		ObjectTags: rs.ObjectTags,
		Index:      q,
		Graph:      clients.Neo4j,
	})

	banks := itembank.New(itembank.UsecasesDeps{
		DB:           db,
		Log:          log,
		CourseBlocks: rs.CourseBlocks,
		ItemBanks:    rs.ItemBanks,
		Selections:   rs.Selections,
		Store:        st,
		Copier:       copier.New(db, log, st, rs.CourseBlocks, rs.ItemBanks),
		Selection: selection.New(db, log, rs.Selections, rs.CourseBlocks, selection.Options{
			Publisher: publisher,
			Metrics:   metrics,
		}),
		BlockTypes: blocktypes.Default(rs.BlockStates),
		Index:      q,
		Metrics:    metrics,
		Exports:    clients.Exports,
	})

	pdeps := search.ProjectorDeps{
		Log:          log,
		Locker:       locker,
		Metrics:      metrics,
		Store:        st,
		Courses:      rs.Courses,
		CourseBlocks: rs.CourseBlocks,
		Definitions:  rs.Definitions,
		SearchAccess: rs.SearchAccess,
		UserRoles:    rs.UserRoles,
		Tags:         tags,
	}
	// Backend stays a nil interface when Meilisearch is off.
	if clients.Meili != nil {
		pdeps.Backend = clients.Meili
	}
	prefix := ""
	if clients.Meili != nil {
		prefix = clients.Meili.Config().IndexPrefix
	}
	projector := search.NewProjector(pdeps, search.ConfigFromEnv(prefix))

	registry := runtime.NewRegistry()
	if err := registry.RegisterAll(searchindex.Handlers(projector)...); err != nil {
		return Services{}, err
	}

	return Services{
		Queue:     q,
		Store:     st,
		Libraries: authoring.New(authoring.UsecasesDeps{DB: db, Log: log, Libraries: rs.Libraries, Versions: rs.Versions, Definitions: rs.Definitions, CourseBlocks: rs.CourseBlocks, Index: q}),
		Courses:   course.New(course.UsecasesDeps{DB: db, Log: log, Courses: rs.Courses, CourseBlocks: rs.CourseBlocks, Definitions: rs.Definitions, ItemBanks: rs.ItemBanks, Selections: rs.Selections, Index: q}),
		ItemBanks: banks,
		Tagging:   tags,
		Projector: projector,
		Rebuild:   rebuild.NewScheduler(log, clients.Temporal, clients.TemporalCfg.TaskQueue, q),
		JobWorker: worker.NewWorker(db, log, rs.JobRuns, registry, metrics, worker.ConfigFromEnv()),
	}, nil
}
