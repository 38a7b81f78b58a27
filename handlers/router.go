package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chenguojun06-star/fz66666-sub008/config"
	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/middleware"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

type RouterDeps struct {
	Log          *logger.Logger
	CORS         config.CORSConfig
	Auth         *services.AuthService
	Predictions  *services.PredictionService
	Feedback     *services.FeedbackService
	StatsRepo    repos.StatsRepo
	PredictionDB repos.PredictionRepo
	Cache        *services.CacheService
	HealthChecks map[string]HealthCheck
}

func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(d.Log), middleware.SetupCORS(d.CORS))

	router.GET("/health", Health(d.HealthChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	intelligence := NewIntelligenceHandler(d.Predictions, d.Feedback, d.Log)
	predictions := NewPredictionHandler(d.PredictionDB, d.Log)
	stats := NewStatsHandler(d.StatsRepo, d.Log)

	api := router.Group("/intelligence")
	api.Use(middleware.NewAuthMiddleware(d.Log, d.Auth).RequireTenant())
	{
		api.POST("/precheck/scan", intelligence.PrecheckScan)
		api.POST("/predict/finish-time", intelligence.PredictFinishTime)
		api.POST("/recommend/inout", intelligence.RecommendInOut)
		api.POST("/feedback", intelligence.Feedback)

		api.GET("/stats", stats.GetStats)
		api.GET("/predictions", predictions.GetPredictions)
		api.GET("/stats-runs/live", LiveStatsRuns(d.Cache, d.Log))
	}

	return router
}
