package server

import (
	"fmt"

	"github.com/naturemedica/commerce/internal/config"
	"github.com/naturemedica/commerce/internal/handler"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers groups the route handlers the server mounts.
type Handlers struct {
	Admin    *handler.AdminHandler
	Tracking *handler.TrackingHandler
	Webhook  *handler.WebhookHandler
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func() error

// Server holds the Fiber application.
type Server struct {
	App    *fiber.App
	cfg    *config.AppConfig
	logger *zap.Logger
}

// New creates the HTTP server with middleware and routes mounted.
func New(cfg *config.AppConfig, logger *zap.Logger, handlers Handlers, health HealthCheck) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "naturemedica-commerce",
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header: "X-Ray-ID",
	}))
	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logger,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if health != nil {
			if err := health(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.Tracking.Register(app)
	handlers.Webhook.Register(app)
	handlers.Admin.Register(app.Group("/admin"))

	return &Server{App: app, cfg: cfg, logger: logger}
}

// Run starts listening. Blocks until shutdown.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.ServerPort)
	s.logger.Info("starting server", zap.String("address", addr))
	return s.App.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
