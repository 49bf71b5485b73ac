// Package backendapi is the durable identity backend: the REST surface
// the auth core probes and synchronizes against. It owns the sqlite
// store and applies idempotent upserts keyed by email.
package backendapi

import (
	"github.com/adamscao/cspmauth/internal/api/middleware"
	"github.com/adamscao/cspmauth/internal/config"
	"github.com/adamscao/cspmauth/internal/db/repository"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server represents the backend HTTP server.
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer builds the backend router over the sqlite repositories.
func NewServer(
	cfg *config.Config,
	identityRepo *repository.IdentityRepository,
	auditRepo *repository.AuditRepository,
	log zerolog.Logger,
) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	h := newHandler(identityRepo, auditRepo, log)

	api := router.Group("/api")
	{
		api.GET("/status", h.Status)
		api.GET("/users", h.ListIdentities)
		api.POST("/users", h.UpsertIdentity)
		api.DELETE("/users/:id", h.DeleteIdentity)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return s.router.Run(s.config.Backend.ListenAddr)
}

// Router returns the underlying Gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}
