package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/recap/internal/api/handler"
	"github.com/timmy/recap/internal/api/middleware"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/qa"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
	"gorm.io/gorm"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	DB       *gorm.DB
	Repos    *repository.Repositories
	Executor service.Executor
	Gate     *service.QualityGate
	Retry    *service.RetryCoordinator
	Delivery *service.DeliveryService
	Harness  *qa.Harness
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// SetupRouter configures the Gin router with all routes
// Parameters:
//   - svc: handlers' service dependencies.
//   - cfg: application configuration.
//
// Returns:
//   - *gin.Engine: router with middleware and routes registered.
func SetupRouter(svc Services, cfg *config.Config) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))

	healthHandler := handler.NewHealthHandler(svc.DB)
	meetingHandler := handler.NewMeetingHandler(svc.Repos, svc.Executor)
	runHandler := handler.NewRunHandler(svc.Repos.Runs)
	deliveryHandler := handler.NewDeliveryHandler(svc.Repos, svc.Gate, svc.Retry, svc.Delivery)
	qaHandler := handler.NewQAHandler(svc.Harness, svc.Repos.QA)

	r.GET("/health", healthHandler.Health)
	if cfg.Metrics.Enabled && svc.Gatherer != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		// Meetings
		v1.POST("/meetings", meetingHandler.Create)
		v1.GET("/meetings", meetingHandler.List)
		v1.GET("/meetings/:id", meetingHandler.Get)
		v1.POST("/meetings/:id/execute", meetingHandler.Execute)
		v1.GET("/meetings/:id/runs", meetingHandler.ListRuns)
		v1.GET("/meetings/:id/deliveries", meetingHandler.ListDeliveries)

		// Runs
		v1.GET("/runs/:id", runHandler.Get)

		// Deliveries
		v1.GET("/deliveries/:id", deliveryHandler.Get)
		v1.POST("/deliveries/:id/evaluate", deliveryHandler.Evaluate)
		v1.POST("/deliveries/:id/retry", deliveryHandler.Retry)
		v1.POST("/deliveries/:id/send", deliveryHandler.Send)

		// QA audit trail
		v1.POST("/qa/runs", qaHandler.Create)
		v1.GET("/qa/runs", qaHandler.List)
		v1.GET("/qa/runs/:run_id", qaHandler.Get)
	}

	return r
}
