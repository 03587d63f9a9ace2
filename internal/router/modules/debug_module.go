package modules

import (
	"expvar"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shopease/auth-service/internal/container"
	"github.com/shopease/auth-service/internal/interface/middleware"
	"github.com/shopease/auth-service/pkg/response"
)

type DebugModule struct{}

func NewDebugModule() *DebugModule { return &DebugModule{} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if pool := container.GetPGPool(); pool != nil {
			if err := pool.Ping(c.Request.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		response.Success(c, code, gin.H{"status": status}, "health", nil)
	})

	if cfg := container.GetConfig(); cfg != nil && cfg.DebugMetricsEnabled {
		// Public metrics endpoint (expvar), rate-limited per IP
		rl := middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())
		rg.GET("/debug/vars", rl, gin.WrapH(expvar.Handler()))
	}
}
