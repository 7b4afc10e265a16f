// Package main runs the poller that executes due workflow runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/flows/pkg/cmd"
	"github.com/dukex/flows/pkg/log"
	"github.com/dukex/flows/pkg/metrics"
	"github.com/dukex/flows/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flows-poller",
		EnableShellCompletion: true,
		Usage:                 "Execute the current action of every due workflow run",
		Flags:                 append(cmd.CommonFlags(), pollerFlags()...),
		Action:                run,
	}

	cmd.LoadDotEnv()

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	owner := command.String("poller-id")
	if owner == "" {
		owner = "poller-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("flows-poller").With("poller_id", owner)
	logger.InfoContext(ctx, "Initializing Flows Poller")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("seed-file"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"), "flows-poller")
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	locker, closeLocker, err := cmd.NewLocker(ctx, logger, command.String("redis-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close lock", "error", err)
		}
	}()

	tracer, shutdownTracer, err := cmd.NewTracer(ctx, logger, command.Bool("otel-enabled"), "flows-poller")
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	defer func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shut down tracer", "error", err)
		}
	}()

	collector := metrics.NewCollector("flows")

	dispatcher := cmd.NewDispatcher(logger, persistence, cmd.ActionConfig{
		MailchimpTimeout:    command.Duration("mailchimp-timeout"),
		MailchimpMaxRetries: uint64(command.Uint("mailchimp-max-retries")),
		MailchimpRateLimit:  command.Float("mailchimp-rate-limit"),
		SMTPAddr:            command.String("smtp-addr"),
		SMTPUsername:        command.String("smtp-username"),
		SMTPPassword:        command.String("smtp-password"),
		EmailFrom:           command.String("email-from"),
	})

	executor := workflow.NewExecutor(logger, persistence, dispatcher,
		workflow.WithPublisher(eventBus),
		workflow.WithMetrics(collector),
		workflow.WithTracer(tracer),
		workflow.WithCascadeLimit(int(command.Int("cascade-limit"))),
		workflow.WithRetryPolicy(workflow.RetryPolicy{
			MaxAttempts:     int(command.Int("max-attempts")),
			InitialInterval: command.Duration("backoff-initial"),
			MaxInterval:     command.Duration("backoff-max"),
		}),
	)

	poller := workflow.NewPoller(logger, persistence.Runs(), executor,
		workflow.WithPageSize(int(command.Int("page-size"))),
		workflow.WithLeaseDuration(command.Duration("lease")),
		workflow.WithSchedule(command.String("schedule")),
		workflow.WithLocker(locker),
		workflow.WithOwner(owner),
		workflow.WithPollerMetrics(collector),
		workflow.WithPollerTracer(tracer),
	)

	if command.Bool("once") {
		stats, err := poller.Tick(ctx)
		logger.InfoContext(ctx, "Poll pass finished",
			"batches", stats.Batches,
			"processed", stats.Processed,
			"failed", stats.Failed)

		return err
	}

	metricsServer := newMetricsServer(collector)

	go func() {
		if err := metricsServer.Listen(command.String("metrics-addr")); err != nil {
			logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
		}
	}()

	defer func() {
		if err := metricsServer.Shutdown(); err != nil {
			logger.ErrorContext(ctx, "Failed to shut down metrics server", "error", err)
		}
	}()

	err = poller.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), command.Duration("shutdown-timeout"))
	defer cancel()

	poller.Stop(stopCtx)

	if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func pollerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "poller-id",
			Aliases: []string{"id"},
			Usage:   "Lease owner of this poller (auto-generated if not provided)",
			Sources: cli.EnvVars("POLLER_ID"),
		},
		&cli.BoolFlag{
			Name:  "once",
			Usage: "Run a single poll pass and exit",
		},
		&cli.StringFlag{
			Name:    "schedule",
			Usage:   "Cron spec of the poll pass",
			Value:   workflow.DefaultSchedule,
			Sources: cli.EnvVars("POLL_SCHEDULE"),
		},
		&cli.IntFlag{
			Name:    "page-size",
			Usage:   "Runs executed per batch",
			Value:   workflow.DefaultPageSize,
			Sources: cli.EnvVars("POLL_PAGE_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "lease",
			Usage:   "How long a claimed run stays reserved for this poller",
			Value:   workflow.DefaultLease,
			Sources: cli.EnvVars("POLL_LEASE"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL of the lock shared between pollers",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Listen address of the metrics endpoint",
			Value:   ":9092",
			Sources: cli.EnvVars("METRICS_ADDR"),
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "How long to wait for a running pass on shutdown",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Fail a run after its current action failed this many times (0 retries forever)",
			Value:   5,
			Sources: cli.EnvVars("RUN_MAX_ATTEMPTS"),
		},
		&cli.DurationFlag{
			Name:    "backoff-initial",
			Usage:   "Delay after the first failed attempt (0 retries on the next pass)",
			Value:   time.Minute,
			Sources: cli.EnvVars("RUN_BACKOFF_INITIAL"),
		},
		&cli.DurationFlag{
			Name:    "backoff-max",
			Usage:   "Upper bound of the retry delay",
			Value:   time.Hour,
			Sources: cli.EnvVars("RUN_BACKOFF_MAX"),
		},
		&cli.IntFlag{
			Name:    "cascade-limit",
			Usage:   "Zero-wait actions executed back to back in one pass",
			Value:   workflow.DefaultCascadeLimit,
			Sources: cli.EnvVars("RUN_CASCADE_LIMIT"),
		},
		&cli.DurationFlag{
			Name:    "mailchimp-timeout",
			Usage:   "Timeout of a Mailchimp request",
			Value:   10 * time.Second,
			Sources: cli.EnvVars("MAILCHIMP_TIMEOUT"),
		},
		&cli.UintFlag{
			Name:    "mailchimp-max-retries",
			Usage:   "Retries of a failed Mailchimp request",
			Value:   3,
			Sources: cli.EnvVars("MAILCHIMP_MAX_RETRIES"),
		},
		&cli.FloatFlag{
			Name:    "mailchimp-rate-limit",
			Usage:   "Mailchimp requests per second",
			Value:   10,
			Sources: cli.EnvVars("MAILCHIMP_RATE_LIMIT"),
		},
		&cli.StringFlag{
			Name:    "smtp-addr",
			Usage:   "SMTP server host:port (emails are logged when empty)",
			Sources: cli.EnvVars("SMTP_ADDR"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.EnvVars("SMTP_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "email-from",
			Usage:   "Sender of emails without an explicit from",
			Sources: cli.EnvVars("EMAIL_FROM"),
		},
	}
}
