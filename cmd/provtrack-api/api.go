package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/provtrack/pkg/eventbus"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/platform"
	"github.com/dukex/provtrack/pkg/provenance"
	"github.com/dukex/provtrack/pkg/provenance/dot"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/dukex/provtrack/pkg/services"
	"github.com/dukex/provtrack/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	remote      reana.ExecutionService
	platform    services.PlatformResolver
	publisher   eventbus.EventPublisher
	monitors    services.Monitors
	tracer      trace.Tracer
	secret      []byte
	dotBinary   string
}

// NewAPI creates the API. publisher may be nil.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	remote reana.ExecutionService,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	secret []byte,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		remote:      remote,
		platform:    platform.NewClient(logger),
		publisher:   publisher,
		tracer:      tracer,
		secret:      secret,
	}
}

// WithMonitors makes submissions start monitoring inside the API process.
func (a *API) WithMonitors(monitors services.Monitors) *API {
	a.monitors = monitors

	return a
}

func (a *API) WithPlatform(resolver services.PlatformResolver) *API {
	a.platform = resolver

	return a
}

func (a *API) WithDotBinary(binary string) *API {
	a.dotBinary = binary

	return a
}

func (a *API) App() *fiber.App {
	executions := services.NewExecutions(a.persistence, a.remote, a.platform, a.publisher, a.tracer, a.logger)
	if a.monitors != nil {
		executions.WithMonitors(a.monitors)
	}

	capturer := provenance.NewCapturer(a.persistence, a.remote, a.publisher, a.tracer, a.logger)

	handlers := web.NewAPIHandlers(
		executions,
		services.NewProvenance(a.persistence, capturer, dot.NewRenderer(a.dotBinary), a.tracer, a.logger),
		services.NewSpecs(a.persistence),
		services.NewHealth(a.persistence),
		validator.New(validator.WithRequiredStructEnabled()),
		a.logger,
	)

	return web.NewApp(handlers, a.secret)
}

// Start serves until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
