// Package main provides the flows management API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flows/pkg/cmd"
	"github.com/dukex/flows/pkg/log"
	"github.com/dukex/flows/pkg/metrics"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd.LoadDotEnv()

	command := &cli.Command{
		Name:                  "flows-api",
		Usage:                 "Create and manage workflows and their runs",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Flows API")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry, err := cmd.NewRegistry(logger)
			if err != nil {
				return fmt.Errorf("failed to build action catalog: %w", err)
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("seed-file"))
			if err != nil {
				return fmt.Errorf("failed to open persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"), "flows-api")
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, registry, eventBus, metrics.NewCollector("flows"))

			return api.Start(ctx, int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
