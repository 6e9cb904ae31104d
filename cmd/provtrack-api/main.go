package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/provtrack/pkg/cmd"
	"github.com/dukex/provtrack/pkg/log"
	"github.com/dukex/provtrack/pkg/monitor"
	"github.com/dukex/provtrack/pkg/reana"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

var errMissingSecret = errors.New("jwt secret must not be empty")

func main() {
	command := &cli.Command{
		Name:                  "provtrack-api",
		Usage:                 "Submit workflows and serve their provenance",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "postgres:// URL, or a directory for the file store",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "reana-url",
				Usage:    "Base URL of the REANA server",
				Required: true,
				Sources:  cli.EnvVars("REANA_SERVER_URL"),
			},
			&cli.StringFlag{
				Name:    "reana-token",
				Usage:   "REANA access token",
				Sources: cli.EnvVars("REANA_ACCESS_TOKEN"),
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "HS256 secret used to verify bearer tokens",
				Required: true,
				Sources:  cli.EnvVars("JWT_SECRET"),
			},
			&cli.BoolFlag{
				Name:    "monitor",
				Usage:   "Monitor submitted executions in this process (always on with gochannel)",
				Sources: cli.EnvVars("EMBEDDED_MONITOR"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Interval between status polls",
				Value:   monitor.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for resuming unmonitored executions",
				Value:   monitor.DefaultSweepSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for monitor leases (in-process leases when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "dot-binary",
				Usage:   "Graphviz dot binary",
				Value:   "dot",
				Sources: cli.EnvVars("DOT_BINARY"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret := command.String("jwt-secret")
	if secret == "" {
		return errMissingSecret
	}

	logger.InfoContext(ctx, "Initializing provtrack API")

	tracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), "provtrack-api")
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBusType := command.String("event-bus")

	eventBus, err := cmd.NewEventBus(eventBusType, command.String("kafka-brokers"), "provtrack-api", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	remote := reana.NewClient(command.String("reana-url"), command.String("reana-token"), logger)

	api := NewAPI(logger, persistence, remote, eventBus, tracer, []byte(secret)).
		WithDotBinary(command.String("dot-binary"))

	if command.Bool("monitor") || eventBusType == "gochannel" {
		locker, closeLocker, err := cmd.NewLocker(ctx, command.String("redis-url"))
		if err != nil {
			return err
		}

		defer func() {
			if err := closeLocker(); err != nil {
				logger.ErrorContext(ctx, "Failed to close lease store", "error", err)
			}
		}()

		manager, sweeper, err := cmd.NewMonitoring(
			persistence, remote, eventBus, locker, tracer, logger,
			command.Duration("poll-interval"), command.String("sweep-schedule"),
		)
		if err != nil {
			return err
		}

		defer manager.Shutdown()

		if err := sweeper.Start(ctx); err != nil {
			return err
		}

		defer sweeper.Stop()

		resumed, err := manager.Resume(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume monitors", "error", err)
		}

		logger.InfoContext(ctx, "Monitoring in process", "resumed", resumed)

		api.WithMonitors(manager)
	}

	err = api.Start(ctx, command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)

		return err
	}

	logger.InfoContext(ctx, "API stopped")

	return nil
}
