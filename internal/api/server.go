// Package api serves the read-only dashboard: session status, open
// positions, trade history and a websocket event feed. It never
// mutates trading state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fractal-trader/internal/circuit"
	"fractal-trader/internal/events"
	"fractal-trader/internal/state"
	"fractal-trader/internal/strategy"
	"fractal-trader/internal/venue"
)

// Config holds dashboard server settings.
type Config struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// DefaultConfig binds to localhost only.
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8087,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8087"},
	}
}

// Server is the dashboard HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config

	store        *state.Store
	breaker      *circuit.Breaker
	venue        venue.Venue
	profile      venue.Profile
	strategyName string
	hub          *WSHub
	logger       zerolog.Logger
	started      time.Time
}

// Deps wires the server's read sources.
type Deps struct {
	Store        *state.Store
	Breaker      *circuit.Breaker
	Venue        venue.Venue
	Profile      venue.Profile
	StrategyName string
	Bus          *events.Bus // optional, feeds the websocket hub
	Logger       zerolog.Logger
}

// NewServer builds the dashboard server and registers its routes.
func NewServer(cfg Config, d Deps) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:       router,
		cfg:          cfg,
		store:        d.Store,
		breaker:      d.Breaker,
		venue:        d.Venue,
		profile:      d.Profile,
		strategyName: d.StrategyName,
		hub:          NewWSHub(d.Logger),
		logger:       d.Logger.With().Str("component", "Dashboard").Logger(),
		started:      time.Now(),
	}
	s.setupRoutes()

	go s.hub.Run()
	if d.Bus != nil {
		d.Bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/performance", s.handlePerformance)
		api.GET("/breaker", s.handleBreaker)
		api.GET("/strategies", s.handleStrategies)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start listens until the server is shut down. http.ErrServerClosed
// is swallowed as a clean exit.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("dashboard listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"venue":  s.profile.Name,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStrategies(c *gin.Context) {
	successResponse(c, gin.H{
		"active":     s.strategyName,
		"registered": strategy.Names(),
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
