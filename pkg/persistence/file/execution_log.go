package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

const executionLogFile = "execution_logs.jsonl"

// ExecutionLogRepository appends execution log rows to a JSON-lines file.
type ExecutionLogRepository struct {
	store *Persistence
}

func (r *ExecutionLogRepository) Append(_ context.Context, entry *models.ExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := os.MkdirAll(r.store.root, 0o750); err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log %s: %w", entry.ID, err)
	}

	f, err := os.OpenFile(r.file(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open execution log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append execution log %s: %w", entry.ID, err)
	}

	return nil
}

// List returns matching rows in append order. A positive Limit keeps the most recent rows.
func (r *ExecutionLogRepository) List(_ context.Context, filter models.ExecutionLogFilter) ([]*models.ExecutionLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	f, err := os.Open(r.file())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionLog{}, nil
		}

		return nil, fmt.Errorf("failed to open execution log: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries := []*models.ExecutionLog{}

	reader := bufio.NewReader(f)

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("failed to read execution log: %w", readErr)
		}

		if len(bytes.TrimSpace(line)) > 0 {
			var entry models.ExecutionLog
			if err := json.Unmarshal(line, &entry); err != nil {
				return nil, fmt.Errorf("failed to decode execution log: %w", err)
			}

			if filter.Matches(&entry) {
				entries = append(entries, &entry)
			}
		}

		if readErr != nil {
			break
		}
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}

	return entries, nil
}

func (r *ExecutionLogRepository) file() string {
	return filepath.Join(r.store.root, executionLogFile)
}
