package api

import (
	"github.com/adamscao/cspmauth/internal/api/middleware"
	"github.com/adamscao/cspmauth/internal/config"
	"github.com/adamscao/cspmauth/internal/flow"
	"github.com/adamscao/cspmauth/internal/session"
	"github.com/adamscao/cspmauth/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server represents the auth-core HTTP server.
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer wires the flow, session manager and repository into the
// HTTP surface.
func NewServer(
	cfg *config.Config,
	fl *flow.Flow,
	sessions *session.Manager,
	repo *store.Repository,
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

	authHandler := NewAuthHandler(fl, sessions, []byte(cfg.Session.SigningKey), log)
	adminHandler := NewAdminHandler(repo, log)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/email", authHandler.SubmitEmail)
			auth.GET("/qr", authHandler.QR)
			auth.POST("/enroll", authHandler.Enroll)
			auth.POST("/verify", authHandler.Verify)
			auth.POST("/back", authHandler.Back)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/session", authHandler.Session)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(cfg.Admin.Token))
		{
			admin.GET("/identities", adminHandler.ListIdentities)
			admin.POST("/identities", adminHandler.CreateIdentity)
			admin.DELETE("/identities/:id", adminHandler.DeleteIdentity)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "mode": repo.Mode().String()})
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	return s.router.Run(s.config.Server.ListenAddr)
}

// Router returns the underlying Gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}
