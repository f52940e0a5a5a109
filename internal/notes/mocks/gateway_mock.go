package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) LoadNotes(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]string)
	return records, args.Error(1)
}

func (m *MockGateway) SaveNote(ctx context.Context, id, record string) error {
	args := m.Called(ctx, id, record)
	return args.Error(0)
}

func (m *MockGateway) DeleteNote(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
