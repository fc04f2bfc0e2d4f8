package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/amoylab/tokengate/internal/gateway"
	"github.com/amoylab/tokengate/pkg/metrics"
	"github.com/amoylab/tokengate/pkg/version"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type (
	// Server is the HTTP and WebSocket front of the gateway
	Server struct {
		logger     *zap.Logger
		cfg        config.ServerConfig
		decimals   int32
		router     *gin.Engine
		httpServer *http.Server
		upgrader   websocket.Upgrader
		hub        *Hub
		admitter   *gateway.Admitter
		registry   *gateway.Registry
		inputs     *gateway.Router
		metrics    *metrics.Metrics
	}

	// Components are the gateway parts a server drives
	Components struct {
		Admitter *gateway.Admitter
		Registry *gateway.Registry
		Router   *gateway.Router
		Hub      *Hub
	}
)

// NewServer creates the server and registers its routes
func NewServer(logger *zap.Logger, cfg *config.GatewayConfig, comps Components, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	hub := comps.Hub
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		logger:   logger.Named("server"),
		cfg:      cfg.Server,
		decimals: cfg.Ledger.TokenDecimals(),
		router:   gin.New(),
		hub:      hub,
		admitter: comps.Admitter,
		registry: comps.Registry,
		inputs:   comps.Router,
		metrics:  m,
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}

	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(m.Middleware())
	s.router.Use(s.corsMiddleware())

	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"message":     "Health check passed.",
			"version":     version.Get(),
			"connections": s.hub.Len(),
		})
	})
	if cfg.Metrics.Enabled && m != nil {
		s.router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	s.router.GET("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: s.router,
	}
	return s
}

// Hub returns the delivery side of the server, used by the fan-out bridge
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and closes every live WebSocket
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	s.hub.CloseAll()
	return err
}

// checkOrigin applies the origin allow-list. Without one, only same-host
// origins or clients that send no Origin are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	return s.originAllowed(origin)
}
