package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Config wires the handlers into the router.
type Config struct {
	AlertHandler *AlertHandler
	Logger       zerolog.Logger
}

// NewRouter builds the JSON API.
func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger.With().Str("component", "api").Logger()))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/")
	registerAlertRoutes(v1, cfg.AlertHandler)

	return router
}

func registerAlertRoutes(router *gin.RouterGroup, alertHandler *AlertHandler) {
	alerts := router.Group("/alerts")
	{
		alerts.GET("", alertHandler.List)
		alerts.POST("", alertHandler.Create)
		alerts.PUT("/:id", alertHandler.Update)
		alerts.POST("/:id/toggle", alertHandler.Toggle)
		alerts.DELETE("/:id", alertHandler.Delete)
	}
	router.GET("/history", alertHandler.History)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}
