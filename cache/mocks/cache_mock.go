package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) SetFileSnapshot(ctx context.Context, fileId string, snapshot []byte) error {
	args := m.Called(ctx, fileId, snapshot)
	return args.Error(0)
}

func (m *MockCache) GetFileSnapshot(ctx context.Context, fileId string) ([]byte, error) {
	args := m.Called(ctx, fileId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCache) InvalidateFiles(ctx context.Context, fileIds []string) error {
	args := m.Called(ctx, fileIds)
	return args.Error(0)
}

func (m *MockCache) SetOnlineUsers(ctx context.Context, fileId string, userIds []string) error {
	args := m.Called(ctx, fileId, userIds)
	return args.Error(0)
}

func (m *MockCache) GetOnlineUsers(ctx context.Context, fileId string) ([]string, error) {
	args := m.Called(ctx, fileId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
