// Package api exposes the segmentation pipeline over HTTP.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/seglab/gosegment/pkg/config"
	"github.com/seglab/gosegment/pkg/pipeline"
	"github.com/seglab/gosegment/pkg/registry"
)

// Server wires HTTP routes to the pipeline engine and the registry.
type Server struct {
	cfg    config.ServerConfig
	engine *pipeline.Engine
	reg    *registry.Registry
	log    zerolog.Logger
	router *gin.Engine
}

// NewServer builds the router. Every /api/v1 route requires the
// configured API key; the root route is open for liveness probes.
func NewServer(cfg config.ServerConfig, engine *pipeline.Engine, reg *registry.Registry, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		engine: engine,
		reg:    reg,
		log:    log,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/", s.handleRoot)

	v1 := router.Group("/api/v1")
	v1.Use(s.requireAPIKey())
	{
		v1.GET("/models", s.handleListModels)
		v1.GET("/models/:kind/status", s.handleModelStatus)
		v1.POST("/train", s.handleTrain)
		v1.POST("/predict/:kind", s.handlePredict)
		v1.POST("/monitor/drift/:kind", s.handleDriftCheck)
		v1.GET("/segments/:kind", s.handleSegments)
		v1.GET("/audit/logs", s.handleAuditLog)
	}

	s.router = router
	return s
}

// Handler returns the underlying http.Handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info().Str("addr", addr).Msg("http server listening")
	return s.router.Run(addr)
}

// requireAPIKey rejects requests whose key header does not match the
// configured secret. With no secret configured the API is open, which is
// only meant for local development.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}
		if c.GetHeader(s.cfg.APIKeyHeader) != s.cfg.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing API key",
			})
			return
		}
		c.Next()
	}
}
