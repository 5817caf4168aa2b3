package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeyodha-signals/internal/api/handlers"
	"github.com/irfndi/tradeyodha-signals/internal/middleware"
)

// RouteDeps are the handlers and guards mounted by SetupRoutes.
type RouteDeps struct {
	Cron     *handlers.CronHandler
	Timeline *handlers.TimelineHandler
	Health   *handlers.HealthHandler
	Cleanup  *handlers.CleanupHandler
	CronAuth *middleware.CronAuth
}

func SetupRoutes(router *gin.Engine, deps RouteDeps) {
	router.GET("/health", deps.Health.HealthCheck)
	router.HEAD("/health", deps.Health.HealthCheck)
	router.GET("/live", deps.Health.LivenessCheck)

	v1 := router.Group("/api/v1")
	{
		cron := v1.Group("/cron")
		cron.Use(deps.CronAuth.Require())
		{
			methods := []string{http.MethodGet, http.MethodPost}
			cron.Match(methods, "/signals", deps.Cron.RunSignals)
			cron.Match(methods, "/timeline", deps.Cron.RunTimeline)
		}

		v1.GET("/timeline/:ticker", deps.Timeline.GetTimeline)
		v1.GET("/timeline/:ticker/thesis", deps.Timeline.GetThesis)

		admin := v1.Group("/admin")
		admin.Use(deps.CronAuth.Require())
		{
			admin.GET("/data-stats", deps.Cleanup.GetDataStats)
			admin.POST("/cleanup", deps.Cleanup.TriggerCleanup)
		}
	}
}
