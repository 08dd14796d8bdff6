package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Workflows   *MockWorkflowRepository
	Enrollments *MockEnrollmentRepository
	Logs        *MockExecutionLogRepository
}

// NewMockPersistence wires fresh repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:   &MockWorkflowRepository{},
		Enrollments: &MockEnrollmentRepository{},
		Logs:        &MockExecutionLogRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return m.Enrollments
}

func (m *MockPersistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return m.Logs
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ActiveByTrigger(ctx context.Context, orgID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	args := m.Called(ctx, orgID, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockEnrollmentRepository is a mock implementation of persistence.EnrollmentRepository interface.
type MockEnrollmentRepository struct {
	mock.Mock
}

func (m *MockEnrollmentRepository) Create(ctx context.Context, enrollment *models.WorkflowEnrollment) error {
	args := m.Called(ctx, enrollment)

	return args.Error(0)
}

func (m *MockEnrollmentRepository) GetByID(ctx context.Context, id string) (*models.WorkflowEnrollment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) EnrolledSince(ctx context.Context, workflowID, clientID string, since time.Time) (bool, error) {
	args := m.Called(ctx, workflowID, clientID, since)

	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) ActiveFor(ctx context.Context, workflowID, clientID string) ([]*models.WorkflowEnrollment, error) {
	args := m.Called(ctx, workflowID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) ListByWorkflow(ctx context.Context, workflowID string, status models.EnrollmentStatus) ([]*models.WorkflowEnrollment, error) {
	args := m.Called(ctx, workflowID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowEnrollment, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowEnrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) Update(ctx context.Context, enrollment *models.WorkflowEnrollment, expectedVersion int64, counters models.RunCounters) error {
	args := m.Called(ctx, enrollment, expectedVersion, counters)

	return args.Error(0)
}

// MockExecutionLogRepository is a mock implementation of persistence.ExecutionLogRepository interface.
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) List(ctx context.Context, filter models.ExecutionLogFilter) ([]*models.ExecutionLog, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLog), args.Error(1)
}
