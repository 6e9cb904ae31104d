package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/provtrack/pkg/cmd"
	"github.com/dukex/provtrack/pkg/log"
	"github.com/dukex/provtrack/pkg/monitor"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "provtrack-worker",
		EnableShellCompletion: true,
		Usage:                 "Monitor submitted executions until they finish",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Value:   "kafka",
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

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("provtrack-worker").With("workerId", workerID)

	logger.InfoContext(ctx, "Initializing provtrack worker")

	tracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), "provtrack-worker")
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "provtrack-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

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

	locker, closeLocker, err := cmd.NewLocker(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close lease store", "error", err)
		}
	}()

	remote := reana.NewClient(command.String("reana-url"), command.String("reana-token"), logger)

	manager, sweeper, err := cmd.NewMonitoring(
		persistence, remote, eventBus, locker, tracer, logger,
		command.Duration("poll-interval"), command.String("sweep-schedule"),
	)
	if err != nil {
		return err
	}

	worker := NewWorkerManager(workerID, persistence, eventBus, manager, sweeper, logger)

	err = worker.Start(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start worker", "error", err)

		return err
	}

	return nil
}
