package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinicore/internal/cloudsync"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
)

// newRouter builds the operations endpoint: liveness, Prometheus metrics and
// the sync status and trigger.
func newRouter(log *zap.Logger, m *metrics.Metrics, engine *cloudsync.Engine) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	sync := r.Group("/sync")
	sync.GET("/status", func(c *gin.Context) {
		st, err := engine.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})
	sync.POST("/run", func(c *gin.Context) {
		report, err := engine.SyncNow(c.Request.Context())
		switch {
		case errors.Is(err, cloudsync.ErrSyncInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, cloudsync.ErrOffline):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "report": report})
		default:
			c.JSON(http.StatusOK, report)
		}
	})
	return r
}
