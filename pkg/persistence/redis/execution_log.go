package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

// ExecutionLogRepository appends execution log rows to a Redis list.
type ExecutionLogRepository struct {
	client *redis.Client
	keys   keyspace
}

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log %s: %w", entry.ID, err)
	}

	if err := r.client.RPush(ctx, r.keys.executionLogs(), data).Err(); err != nil {
		return fmt.Errorf("failed to append execution log %s: %w", entry.ID, err)
	}

	return nil
}

// List returns matching rows in append order. A positive Limit keeps the most recent rows.
func (r *ExecutionLogRepository) List(ctx context.Context, filter models.ExecutionLogFilter) ([]*models.ExecutionLog, error) {
	raw, err := r.client.LRange(ctx, r.keys.executionLogs(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution logs: %w", err)
	}

	entries := make([]*models.ExecutionLog, 0, len(raw))

	for _, item := range raw {
		var entry models.ExecutionLog
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode execution log: %w", err)
		}

		if filter.Matches(&entry) {
			entries = append(entries, &entry)
		}
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}

	return entries, nil
}
