// Package server assembles the fiber application.
package server

import (
	"context"
	"time"

	"license-server/internal/config"
	"license-server/internal/handler"
	"license-server/internal/metrics"
	"license-server/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	app     *fiber.App
	cfg     config.ServerConfig
	db      Pinger
	metrics *metrics.Metrics
	limiter *middleware.Limiter
	log     *zap.Logger
}

func NewServer(
	cfg config.ServerConfig,
	h *handler.Handler,
	auth middleware.Authenticator,
	limiter *middleware.Limiter,
	m *metrics.Metrics,
	db Pinger,
	log *zap.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "License Server",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           120 * time.Second,
		ErrorHandler:          handler.ErrorHandler(log),
		DisableStartupMessage: true,
	})

	s := &Server{
		app:     app,
		cfg:     cfg,
		db:      db,
		metrics: m,
		limiter: limiter,
		log:     log.Named("server"),
	}

	s.setupMiddleware()
	s.setupRoutes(h, auth)
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	s.app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{AllowOrigins: s.cfg.CORSOrigins}))
	s.app.Use(middleware.Metrics(s.metrics))
}

func (s *Server) setupRoutes(h *handler.Handler, auth middleware.Authenticator) {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	limit := func(route string) fiber.Handler {
		return middleware.RateLimit(s.limiter, s.metrics, route)
	}
	h.Register(s.app.Group("/api/v1"), middleware.Auth(auth), limit)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "degraded",
			"database": "unreachable",
			"time":     time.Now().UTC(),
		})
	}
	return c.JSON(fiber.Map{
		"status":   "ok",
		"database": "ok",
		"time":     time.Now().UTC(),
	})
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	addr := s.cfg.Addr()
	s.log.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.app.ShutdownWithContext(ctx)
}
