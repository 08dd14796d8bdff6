// Package redis provides Redis-backed persistence for workflows, enrollments and execution logs.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

const defaultKeyPrefix = "automation:"

// Persistence implements the persistence layer on Redis hashes, strings and sorted sets.
type Persistence struct {
	client         *redis.Client
	keys           keyspace
	logger         *slog.Logger
	workflowRepo   *WorkflowRepository
	enrollmentRepo *EnrollmentRepository
	logRepo        *ExecutionLogRepository
}

// NewPersistence connects to the redis:// URL and verifies the connection.
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return newPersistence(client, logger, defaultKeyPrefix), nil
}

func newPersistence(client *redis.Client, logger *slog.Logger, prefix string) *Persistence {
	logger = logger.With("module", "redis")
	keys := keyspace(prefix)

	return &Persistence{
		client:         client,
		keys:           keys,
		logger:         logger,
		workflowRepo:   &WorkflowRepository{client: client, keys: keys, logger: logger},
		enrollmentRepo: &EnrollmentRepository{client: client, keys: keys, logger: logger},
		logRepo:        &ExecutionLogRepository{client: client, keys: keys},
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollmentRepo
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.logRepo
}

// keyspace builds every key used by the store under one prefix.
type keyspace string

func (k keyspace) key(parts ...string) string {
	return string(k) + strings.Join(parts, ":")
}

func (k keyspace) workflow(id string) string {
	return k.key("wf", "id", id)
}

func (k keyspace) workflowsByOrg(org string) string {
	return k.key("wf", "org", org)
}

func (k keyspace) workflowsAll() string {
	return k.key("wf", "all")
}

func (k keyspace) enrollment(id string) string {
	return k.key("enr", "id", id)
}

func (k keyspace) enrollmentsByWorkflow(workflowID string) string {
	return k.key("enr", "wf", workflowID)
}

func (k keyspace) enrollmentsByClient(workflowID, clientID string) string {
	return k.key("enr", "wf", workflowID, "client", clientID)
}

func (k keyspace) enrollmentsDue() string {
	return k.key("enr", "due")
}

func (k keyspace) executionLogs() string {
	return k.key("log", "entries")
}

// score orders sorted-set members by time at microsecond precision.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}
