package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/auth"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/core"
	"github.com/vovakirdan/sugarchat/internal/metrics"
	"github.com/vovakirdan/sugarchat/internal/store"
)

// NewServer builds the relay HTTP server. The REST API is mounted only when
// both authService and st are set; m may be nil.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	st store.Store,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zerolog.Logger,
) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	if authService != nil && st != nil {
		apiHandlers := NewAPIHandlers(authService, logger)
		buddyHandlers := NewBuddyHandlers(st, logger)
		channelHandlers := NewChannelHandlers(st, logger)

		api := router.Group("/api")
		{
			api.POST("/register", apiHandlers.Register)
			api.POST("/login", apiHandlers.Login)
			api.POST("/guest", apiHandlers.GuestLogin)

			protected := api.Group("")
			protected.Use(AuthMiddleware(authService, logger))
			{
				protected.GET("/me", buddyHandlers.Me)
				protected.GET("/buddies/search", buddyHandlers.Search)
				protected.POST("/channels", channelHandlers.Create)
				protected.GET("/channels", channelHandlers.List)
				protected.GET("/channels/:name/messages", channelHandlers.History)
				protected.GET("/channels/:name/log", channelHandlers.Log)
			}
		}
	}

	// The WebSocket endpoint stays off the gin engine, whose response writer
	// breaks hijacked connections.
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, m, cfg, logger))
	mux.Handle("/", router)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
