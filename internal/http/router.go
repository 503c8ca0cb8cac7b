package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/contentlib/internal/http/handlers"
	httpMW "github.com/yungbote/contentlib/internal/http/middleware"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	LibraryHandler  *httpH.LibraryHandler
	CourseHandler   *httpH.CourseHandler
	ItemBankHandler *httpH.ItemBankHandler
	TagHandler      *httpH.TagHandler
	SearchHandler   *httpH.SearchHandler
	JobHandler      *httpH.JobHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/metrics", cfg.HealthHandler.Metrics)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		// Libraries
		if cfg.LibraryHandler != nil {
			protected.POST("/libraries", cfg.LibraryHandler.CreateLibrary)
			protected.POST("/libraries/:library_key/blocks", cfg.LibraryHandler.AddBlock)
			protected.PATCH("/libraries/:library_key/blocks/:block_id", cfg.LibraryHandler.UpdateBlock)
			protected.DELETE("/libraries/:library_key/blocks/:block_id", cfg.LibraryHandler.DeleteBlock)
		}

		// Courses
		if cfg.CourseHandler != nil {
			protected.POST("/courses", cfg.CourseHandler.CreateCourse)
			protected.POST("/courses/blocks", cfg.CourseHandler.CreateBlock)
			protected.GET("/courses/:course_key/blocks", cfg.CourseHandler.ListBlocks)
		}

		// Item-banks
		if cfg.ItemBankHandler != nil {
			protected.POST("/itembanks", cfg.ItemBankHandler.Create)
			protected.POST("/itembanks/import", cfg.ItemBankHandler.ImportOLX)
			protected.GET("/itembanks/:usage_key", cfg.ItemBankHandler.Get)
			protected.PATCH("/itembanks/:usage_key/settings", cfg.ItemBankHandler.UpdateSettings)
			protected.POST("/itembanks/:usage_key/sync", cfg.ItemBankHandler.Sync)
			protected.GET("/itembanks/:usage_key/validate", cfg.ItemBankHandler.Validate)
			protected.GET("/itembanks/:usage_key/children", cfg.ItemBankHandler.Children)
			protected.GET("/itembanks/:usage_key/titles", cfg.ItemBankHandler.Titles)
			protected.POST("/itembanks/:usage_key/reset", cfg.ItemBankHandler.Reset)
			protected.GET("/itembanks/:usage_key/olx", cfg.ItemBankHandler.ExportOLX)
			protected.DELETE("/itembanks/:usage_key", cfg.ItemBankHandler.Delete)
		}

		// Tags
		if cfg.TagHandler != nil {
			protected.POST("/taxonomies", cfg.TagHandler.CreateTaxonomy)
			protected.POST("/taxonomies/:name/tags", cfg.TagHandler.CreateTag)
			protected.GET("/tags/:usage_key", cfg.TagHandler.GetObjectTags)
			protected.PUT("/tags/:usage_key", cfg.TagHandler.SetObjectTags)
		}

		// Search
		if cfg.SearchHandler != nil {
			protected.POST("/search/token", cfg.SearchHandler.Token)
			protected.POST("/search/rebuild", cfg.SearchHandler.Rebuild)
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}
