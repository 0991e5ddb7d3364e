// internal/api/router.go
package api

import (
	"os"
	"time"

	"github.com/Corphon/LectureCompanion/internal/di"
	"github.com/gin-gonic/gin"
)

// SetupRouter wires every route onto a new engine.
func SetupRouter(container *di.Container) *gin.Engine {
	cfg := container.Config
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := NewHandler(container)
	limiter := NewRateLimiter(cfg.RateLimit, time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(RequestID(), RequestLogger(container.Metrics), CORS(cfg.CORSOrigins))

	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		r.Static("/static", cfg.StaticDir)
	}

	r.GET("/healthz", handler.Health)
	r.GET("/metrics", gin.WrapH(container.Metrics.Handler()))
	r.GET("/ws/jobs/:id", handler.JobWebSocket)

	api := r.Group("/api")
	api.Use(limiter.Middleware(handler.Response))
	{
		lessons := api.Group("/lessons")
		{
			lessons.GET("", handler.ListLessons)
			lessons.POST("", handler.CreateLesson)
			lessons.GET("/:id", handler.GetLesson)
			lessons.PUT("/:id", handler.UpdateLesson)
			lessons.DELETE("/:id", handler.DeleteLesson)
			lessons.GET("/:id/jobs", handler.ListLessonJobs)

			lessons.POST("/:id/alignment", handler.AlignLesson)
			lessons.GET("/:id/alignment", handler.GetAlignment)

			lessons.POST("/:id/artifacts/:kind", handler.GenerateArtifact)
			lessons.GET("/:id/artifacts/:kind", handler.GetArtifact)

			lessons.POST("/:id/deviation", handler.AnalyzeDeviation)

			lessons.POST("/:id/transcribe", handler.UploadMedia)
			lessons.POST("/:id/slides", handler.UploadSlides)
		}

		api.POST("/alignment", handler.AlignText)

		jobs := api.Group("/jobs")
		{
			jobs.GET("/:id", handler.GetJob)
			jobs.GET("/:id/events", handler.JobEvents)
			jobs.POST("/:id/cancel", handler.CancelJob)
		}

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		handler.Response.NotFound(c, "route not found")
	})
	return r
}
