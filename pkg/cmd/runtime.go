package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/log"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/otelhelper"
)

const metricsNamespace = "automation"

// CommonFlags are accepted by every binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Persistence URL: a directory, postgres://... or redis://...",
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
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to the engine YAML config (retry, scheduler, action timeout, appointment categories)",
			Sources: cli.EnvVars("ENGINE_CONFIG"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// Runtime owns the engine and the resources behind it.
type Runtime struct {
	*Engine

	Logger  *slog.Logger
	closers []func(context.Context) error
}

// NewRuntime configures logging and opens the store, bus and tracer named by
// the command's flags. Close releases them in reverse order.
func NewRuntime(ctx context.Context, command *cli.Command, module string) (*Runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(module)
	rt := &Runtime{Logger: logger}

	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return nil, err
	}

	p, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	rt.closers = append(rt.closers, p.Close)

	bus, err := NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), command.Root().Name, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}

	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })

	tracer := otelhelper.NoopTracer()

	if command.Bool("tracing") {
		var shutdown otelhelper.ShutdownFunc

		tracer, shutdown, err = otelhelper.NewTracer(ctx, command.Root().Name)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize tracer: %w", err), rt.Close(ctx))
		}

		rt.closers = append(rt.closers, shutdown)
	}

	rt.Engine = NewEngine(p, bus, cfg, metrics.NewProm(metricsNamespace), tracer, clockwork.NewRealClock(), logger)

	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.closers = nil

	return errors.Join(errs...)
}
