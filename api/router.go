package api

import (
	"log"
	"net/http"

	"github.com/Rib4ko/backendYT/config"
	"github.com/Rib4ko/backendYT/delivery"
	"github.com/Rib4ko/backendYT/task"
	"github.com/gin-gonic/gin"
)

func SetupRouter(tm *task.Manager, svc *delivery.Service, cfg *config.Config, logger *log.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery(), CORSMiddleware(cfg))
	h := NewHandler(tm, svc, cfg, logger)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/clip", h.handleClip)
	r.GET("/download/:filename", h.handleDownload)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/jobs", h.handleCreateJob)
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.PATCH("/jobs/:jobId/cancel", h.handleCancelJob)
	}
	return r
}
