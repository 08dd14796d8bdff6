// Package main provides the automation API server: workflow administration,
// event intake, manual enrollment and execution reporting.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/cmd"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "automation-api",
		Usage:                 "Manage workflows and receive practice events",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := cmd.NewRuntime(ctx, command, "api")
			if err != nil {
				return err
			}

			defer func() {
				if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
					rt.Logger.ErrorContext(ctx, "Failed to release resources", "error", err)
				}
			}()

			rt.Logger.InfoContext(ctx, "Initializing automation API")

			return NewAPI(rt.Engine, rt.Logger).Start(ctx, command.Int("port"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		stop()
		panic(err)
	}
}
