// Package http assembles the REST API: routing, middleware, and server
// lifecycle.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/prometheus"
	"github.com/parcelview/geofusion/internal/interfaces/http/handlers"
	"github.com/parcelview/geofusion/internal/interfaces/http/middleware"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Analysis *handlers.AnalysisHandler
	Layers   *handlers.LayerHandler
	Health   *handlers.HealthHandler

	Metrics   *prometheus.AppMetrics
	Collector prometheus.MetricsCollector
	Logger    logging.Logger
	CORS      middleware.CORSConfig
}

// NewRouter builds the gin engine with the full middleware chain and route
// table.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogging(deps.Logger))
	router.Use(middleware.CORS(deps.CORS))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	router.GET("/healthz", deps.Health.Live)
	router.GET("/readyz", deps.Health.Ready)
	if deps.Collector != nil {
		router.GET("/metrics", gin.WrapH(deps.Collector.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		analysis := v1.Group("/analysis")
		{
			analysis.POST("/fuse", deps.Analysis.Fuse)
			analysis.POST("/jobs", deps.Analysis.SubmitJob)
			analysis.GET("/jobs/:id", deps.Analysis.JobResult)
		}

		layers := v1.Group("/layers")
		{
			layers.GET("", deps.Layers.List)
			layers.POST("", deps.Layers.Create)
			layers.GET("/:id", deps.Layers.Get)
			layers.PUT("/:id", deps.Layers.Update)
			layers.DELETE("/:id", deps.Layers.Delete)
			layers.PUT("/:id/dataset", deps.Layers.UploadDataset)
		}
	}

	return router
}
