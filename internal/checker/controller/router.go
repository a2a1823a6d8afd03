package controller

import (
	"net/http"

	commonmw "solcheck/internal/common/http/middleware"
	"solcheck/internal/common/ratelimit"

	"github.com/gin-gonic/gin"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Checks    *CheckController
	APIKeys   []string
	Limiter   *ratelimit.Service
	RateLimit commonmw.RateLimitPolicy
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", Health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	auth := commonmw.APIKeyMiddleware(cfg.APIKeys)
	router.POST("/check_solution",
		auth,
		commonmw.RateLimitMiddleware(cfg.Limiter, "check_solution", cfg.RateLimit),
		cfg.Checks.CheckSolution,
	)
	router.POST("/lint", auth, cfg.Checks.Lint)
	return router
}
