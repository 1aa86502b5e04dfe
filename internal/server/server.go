// Package server exposes the wizard over a JSON HTTP API.
package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/KaramelBytes/stagewise/internal/logging"
	"github.com/KaramelBytes/stagewise/internal/metrics"
	"github.com/KaramelBytes/stagewise/internal/session"
)

// Options configures the HTTP surface.
type Options struct {
	Store       *session.Store
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
	// MaxUploadBytes bounds request bodies; zero keeps fiber's default.
	MaxUploadBytes int
}

type Server struct {
	app    *fiber.App
	store  *session.Store
	logger *zap.Logger
}

// New builds the fiber app and registers all routes.
func New(opt Options) *Server {
	logger := logging.OrNop(opt.Logger)
	app := fiber.New(fiber.Config{
		AppName:               "stagewise",
		BodyLimit:             opt.MaxUploadBytes,
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: true,
	})

	if len(opt.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(opt.CORSOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept",
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		}))
	}
	app.Use(requestLogger(logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": opt.Store.Len()})
	})
	if opt.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opt.Metrics.Handler()))
	}

	h := &wizardHandler{store: opt.Store, logger: logger}
	h.RegisterRoutes(app.Group("/api"))

	return &Server{app: app, store: opt.Store, logger: logger}
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run listens on addr until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.logger.Info("server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	return s.store.Close(ctx)
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet; report what it will send.
			status = classify(err).Code
		}
		logger.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)))
		return err
	}
}
