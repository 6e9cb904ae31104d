package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/moogar0880/problems"
)

const problemMediaType = "application/problem+json"

// NewApp assembles the API: open health endpoints first, then every route
// behind bearer authentication.
func NewApp(handlers *APIHandlers, secret []byte) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: frameworkError,
	})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("provtrack API")
	})

	app.Use(Authenticate(secret))
	handlers.Routes(app)

	return app
}

// frameworkError answers errors raised by fiber itself, such as unknown routes
// or unsupported methods, with a problem document.
func frameworkError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	detail := "internal error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		detail = fiberErr.Message
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType("framework_error").
		WithDetail(detail)

	return c.Status(status).JSON(problem, problemMediaType)
}
