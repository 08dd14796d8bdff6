// Package main provides the automation worker: it consumes trigger events
// from the bus and ticks due enrollments on a schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/cmd"
)

const defaultMetricsPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "automation-worker",
		Usage:                 "Match trigger events and run scheduled workflow steps",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port serving /metrics, 0 to disable",
				Value:   defaultMetricsPort,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "worker")
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					rt.Logger.ErrorContext(ctx, "Failed to release resources", "error", err)
				}
			}()

			rt.Logger.InfoContext(ctx, "Initializing automation worker")

			return NewWorker(rt.Engine, rt.Logger).Run(ctx, command.Int("metrics-port"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		stop()
		panic(err)
	}
}
