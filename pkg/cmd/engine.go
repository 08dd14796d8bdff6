package cmd

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/conditions"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/eventbus"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/services"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/trigger"
)

// Engine is the set of components both binaries run on.
type Engine struct {
	Persistence persistence.Persistence
	Bus         eventbus.EventBus
	Config      config.EngineConfig
	Clock       clockwork.Clock
	Validator   *validator.Validate
	Recorder    *executionlog.Recorder
	Enrollments *enrollment.Manager
	Executor    *executor.Executor
	Matcher     *trigger.Matcher
	Workflows   *services.Workflow
	Lifecycle   *services.Lifecycle
	Metrics     metrics.Metrics
}

// NewEngine wires the engine over p and bus. Outbound messages and tags are
// published on bus for delivery services to pick up.
func NewEngine(
	p persistence.Persistence,
	bus eventbus.EventBus,
	cfg config.EngineConfig,
	m metrics.Metrics,
	tracer trace.Tracer,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Engine {
	validate := validator.New(validator.WithRequiredStructEnabled())
	evaluator := conditions.NewEvaluator(clock, logger)
	recorder := executionlog.NewRecorder(p.ExecutionLogRepository(), clock, logger)
	outbox := delivery.NewOutbox(bus, clock, logger)
	manager := enrollment.NewManager(p, recorder, bus, clock, logger)

	exec := executor.NewExecutor(executor.Dependencies{
		Persistence: p,
		Evaluator:   evaluator,
		Sender:      outbox,
		Tags:        outbox,
		Recorder:    recorder,
		Publisher:   bus,
		Metrics:     m,
		Tracer:      tracer,
		Clock:       clock,
		Logger:      logger,
	}, cfg)

	normalizer := conditions.NewAppointmentNormalizer(cfg.Categories)

	return &Engine{
		Persistence: p,
		Bus:         bus,
		Config:      cfg,
		Clock:       clock,
		Validator:   validate,
		Recorder:    recorder,
		Enrollments: manager,
		Executor:    exec,
		Matcher:     trigger.NewMatcher(p, evaluator, normalizer, manager, exec, m, tracer, logger),
		Workflows:   services.NewWorkflow(p, validate, clock, logger),
		Lifecycle:   services.NewLifecycle(p, manager, clock, logger),
		Metrics:     m,
	}
}
