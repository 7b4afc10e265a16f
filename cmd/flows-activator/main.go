// Package main runs the activator that turns cart order events into workflow runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flows/pkg/cmd"
	"github.com/dukex/flows/pkg/log"
	"github.com/dukex/flows/pkg/services"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd.LoadDotEnv()

	command := &cli.Command{
		Name:                  "flows-activator",
		Usage:                 "Start workflow runs from cart order events",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "activator-id",
				Aliases: []string{"id"},
				Usage:   "Custom activator ID (auto-generated if not provided)",
				Sources: cli.EnvVars("ACTIVATOR_ID"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			activatorID := command.String("activator-id")
			if activatorID == "" {
				activatorID = "activator-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flows-activator").With("activator_id", activatorID)
			logger.InfoContext(ctx, "Initializing Flows Activator")

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

			eventBus, err := cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"), "flows-activator")
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			runs := services.NewRun(logger, persistence, services.WithRunPublisher(eventBus))

			return NewActivator(activatorID, eventBus, runs, logger).Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
