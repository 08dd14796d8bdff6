// Package file provides file-based persistence for workflows, enrollments and execution logs.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// A single mutex serializes writers so an enrollment commit and its workflow
// counter increment are applied together.
type Persistence struct {
	root           string
	mu             sync.Mutex
	workflowRepo   *WorkflowRepository
	enrollmentRepo *EnrollmentRepository
	logRepo        *ExecutionLogRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{store: p}
	p.enrollmentRepo = &EnrollmentRepository{store: p}
	p.logRepo = &ExecutionLogRepository{store: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
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

func (p *Persistence) dir(kind string) string {
	return filepath.Join(p.root, kind)
}

func (p *Persistence) path(kind, id string) string {
	return filepath.Clean(filepath.Join(p.root, kind, filepath.Base(id)+".json"))
}

// readJSON loads kind/id into dest, reporting false when the file does not exist.
func (p *Persistence) readJSON(kind, id string, dest any) (bool, error) {
	body, err := os.ReadFile(p.path(kind, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

// writeJSON replaces kind/id through a temp file and rename.
func (p *Persistence) writeJSON(kind, id string, value any) error {
	if err := os.MkdirAll(p.dir(kind), 0o750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	target := p.path(kind, id)

	tmp, err := os.CreateTemp(p.dir(kind), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s %s: %w", kind, id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close %s %s: %w", kind, id, err)
	}

	return os.Rename(tmp.Name(), target)
}

// listIDs returns the ids stored under kind.
func (p *Persistence) listIDs(kind string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir(kind), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), ".json"))
	}

	return ids, nil
}
