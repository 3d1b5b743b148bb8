package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"realtime-gateway/internal/database"
	"realtime-gateway/internal/gateway"
)

type Router struct {
	engine  *gin.Engine
	gateway *gateway.Gateway
	redis   *database.RedisClient
}

func NewRouter(gw *gateway.Gateway, redis *database.RedisClient) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LogApi())

	r := &Router{
		engine:  engine,
		gateway: gw,
		redis:   redis,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/ws", r.gateway.ServeWS)
	r.engine.GET("/healthz", r.health)
	r.engine.GET("/stats", r.stats)
}

// health reports liveness. A backbone outage is degraded mode, not an
// error: local delivery keeps working, so the status stays 200.
func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	backboneStatus := "ok"
	if err := r.redis.Ping(ctx); err != nil {
		backboneStatus = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"backbone": backboneStatus,
	})
}

func (r *Router) stats(c *gin.Context) {
	c.JSON(http.StatusOK, r.gateway.Stats())
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func LogApi() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] | %s | %d | %s | %s | %s | %s\n",
			param.TimeStamp.Format("2006-01-02 15:04:05"),
			param.ClientIP,
			param.StatusCode,
			param.Method,
			param.Path,
			param.ErrorMessage,
			param.Latency,
		)
	})
}
