package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pedjoni/idiorag/internal/api/documents"
	"github.com/pedjoni/idiorag/internal/api/middleware"
	"github.com/pedjoni/idiorag/internal/api/query"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AppName      string
	Version      string
	AllowOrigins []string
}

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Authenticator middleware.TokenAuthenticator
	Ingester      documents.Ingester
	Documents     documents.Store
	Strategies    documents.StrategyLister
	Orchestrator  query.Orchestrator
}

// SetupRouter sets up the Gin router
func SetupRouter(deps Dependencies, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": cfg.Version,
		})
	})

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(deps.Authenticator, logger))

	documents.NewHandler(deps.Ingester, deps.Documents, deps.Strategies).RegisterRoutes(v1)
	query.NewHandler(deps.Orchestrator).RegisterRoutes(v1)

	return r
}
