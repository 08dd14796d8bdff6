package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		workflowErr := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)
		enrollmentErr := persistence.NewEnrollmentError("Update", "enrollment-456", persistence.ErrVersionConflict)

		assert.True(t, persistence.IsWorkflowNotFound(workflowErr))
		assert.True(t, persistence.IsVersionConflict(enrollmentErr))
		assert.False(t, persistence.IsEnrollmentNotFound(enrollmentErr))

		wrapped := fmt.Errorf("tick: %w", enrollmentErr)
		assert.True(t, errors.Is(wrapped, persistence.ErrVersionConflict))
	})

	t.Run("workflow error contains context", func(t *testing.T) {
		err := persistence.NewWorkflowError("Save", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("enrollment error contains context", func(t *testing.T) {
		err := persistence.NewEnrollmentError("GetByID", "enrollment-456", persistence.ErrEnrollmentNotFound)

		assert.Contains(t, err.Error(), "GetByID")
		assert.Contains(t, err.Error(), "enrollment-456")
		assert.Contains(t, err.Error(), "enrollment not found")
	})
}
