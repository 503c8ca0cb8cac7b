package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/contentlib/internal/http"
	httpH "github.com/yungbote/contentlib/internal/http/handlers"
	httpMW "github.com/yungbote/contentlib/internal/http/middleware"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, services Services, metrics *observability.Metrics) *gin.Engine {
	log.Info("Wiring handlers...")
	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY not set; every /api request will be rejected")
	}
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, httpMW.NewTokenVerifier(cfg.JWTSecretKey)),
		LibraryHandler:  httpH.NewLibraryHandler(services.Libraries),
		CourseHandler:   httpH.NewCourseHandler(services.Courses),
		ItemBankHandler: httpH.NewItemBankHandler(services.ItemBanks),
		TagHandler:      httpH.NewTagHandler(services.Tagging),
		SearchHandler:   httpH.NewSearchHandler(services.Projector, services.Rebuild),
		JobHandler:      httpH.NewJobHandler(services.Queue),
		HealthHandler:   httpH.NewHealthHandler(metrics.Handler()),
	})
}

func newServer(engine *gin.Engine) *http.Server {
	return &http.Server{Engine: engine}
}
