package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
)

// MockMessageSender is a mock implementation of delivery.MessageSender interface.
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) Send(ctx context.Context, msg delivery.Message) (delivery.Receipt, error) {
	args := m.Called(ctx, msg)

	return args.Get(0).(delivery.Receipt), args.Error(1)
}

// MockTagService is a mock implementation of delivery.TagService interface.
type MockTagService struct {
	mock.Mock
}

func (m *MockTagService) AddTag(ctx context.Context, orgID, clientID, tag string) error {
	args := m.Called(ctx, orgID, clientID, tag)

	return args.Error(0)
}
