package server

import (
	"context"
	"errors"
	"log"

	"tabkeeper-be/internal/bootstrap"
	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/controller"
	"tabkeeper-be/internal/entity"
	"tabkeeper-be/internal/pkg/serverutils"
	"tabkeeper-be/internal/scheduler"
	"tabkeeper-be/internal/service"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024, // 10MB, bulk imports
		DisableStartupMessage: true,
		ErrorHandler:          serverutils.ErrorHandlerMiddleware(classifyError),
	})

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	registerRoutes(app, cfg, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Ops server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(app *fiber.App, cfg *config.Config, c *bootstrap.Container) {
	auth := serverutils.NewJwtMiddleware(serverutils.JwtConfig{
		Secret:         cfg.Ops.JWTSecret,
		Revoked:        c.UowFactory.NewUnitOfWork(context.Background()).RevokedTokenRepository(),
		AllowAnonymous: !cfg.IsProduction(),
	})

	ops := controller.NewOpsController(c.Dispatcher, c.Scheduler, c.PublisherService, c.UowFactory, c.Logger)
	ops.RegisterRoutes(app, auth)

	api := app.Group("/api")
	suggestions := controller.NewSuggestionController(c.SuggestionService, c.PublisherService)
	suggestions.RegisterRoutes(api, auth)
}

func classifyError(err error) int {
	switch {
	case errors.Is(err, service.ErrSuggestionNotFound), errors.Is(err, scheduler.ErrTaskNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, entity.ErrInvalidTransition), errors.Is(err, scheduler.ErrTaskRunning):
		return fiber.StatusConflict
	case errors.Is(err, serverutils.ErrNoUser):
		return fiber.StatusUnauthorized
	}
	return 0
}
