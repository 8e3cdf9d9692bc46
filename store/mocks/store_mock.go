package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/copaint/copaint/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateFile(ctx context.Context, file models.File) (models.File, error) {
	args := m.Called(ctx, file)
	return args.Get(0).(models.File), args.Error(1)
}

func (m *MockStore) GetFile(ctx context.Context, fileId string) (models.File, error) {
	args := m.Called(ctx, fileId)
	return args.Get(0).(models.File), args.Error(1)
}

func (m *MockStore) ListFilesByOwner(ctx context.Context, ownerId string, recycled bool) ([]models.File, error) {
	args := m.Called(ctx, ownerId, recycled)
	return args.Get(0).([]models.File), args.Error(1)
}

func (m *MockStore) RenameFile(ctx context.Context, fileId string, newName string) error {
	args := m.Called(ctx, fileId, newName)
	return args.Error(0)
}

func (m *MockStore) SetRecycled(ctx context.Context, fileId string, recycled bool) error {
	args := m.Called(ctx, fileId, recycled)
	return args.Error(0)
}

func (m *MockStore) DeleteFile(ctx context.Context, fileId string) error {
	args := m.Called(ctx, fileId)
	return args.Error(0)
}

func (m *MockStore) UpdateFileContent(ctx context.Context, fileId string, content models.CanvasContent) error {
	args := m.Called(ctx, fileId, content)
	return args.Error(0)
}

func (m *MockStore) SetCollaborators(ctx context.Context, fileId string, collaborators []models.Collaborator) error {
	args := m.Called(ctx, fileId, collaborators)
	return args.Error(0)
}

func (m *MockStore) TransferOwner(ctx context.Context, fileId string, newOwnerId string, collaborators []models.Collaborator) error {
	args := m.Called(ctx, fileId, newOwnerId, collaborators)
	return args.Error(0)
}

func (m *MockStore) SetShareSettings(ctx context.Context, fileId string, shareCode string, enablePassword bool, password string, permission models.Permission) error {
	args := m.Called(ctx, fileId, shareCode, enablePassword, password, permission)
	return args.Error(0)
}

func (m *MockStore) AppendOperation(ctx context.Context, op models.Operation) (models.Operation, error) {
	args := m.Called(ctx, op)
	return args.Get(0).(models.Operation), args.Error(1)
}

func (m *MockStore) ListOperationsSince(ctx context.Context, fileId string, since time.Time, limit int32) ([]models.Operation, error) {
	args := m.Called(ctx, fileId, since, limit)
	return args.Get(0).([]models.Operation), args.Error(1)
}

func (m *MockStore) DeleteExpiredOperations(ctx context.Context, fileId string, olderThan time.Time, batchSize int) (int, error) {
	args := m.Called(ctx, fileId, olderThan, batchSize)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) DeleteFileOperations(ctx context.Context, fileId string) error {
	args := m.Called(ctx, fileId)
	return args.Error(0)
}

func (m *MockStore) CreatePermissionRequest(ctx context.Context, req models.PermissionRequest) (models.PermissionRequest, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.PermissionRequest), args.Error(1)
}

func (m *MockStore) ListPermissionRequests(ctx context.Context, fileId string) ([]models.PermissionRequest, error) {
	args := m.Called(ctx, fileId)
	return args.Get(0).([]models.PermissionRequest), args.Error(1)
}

func (m *MockStore) ResolvePermissionRequest(ctx context.Context, fileId string, requestId string, status models.RequestStatus, processedBy string) error {
	args := m.Called(ctx, fileId, requestId, status, processedBy)
	return args.Error(0)
}

func (m *MockStore) DeleteFilePermissionRequests(ctx context.Context, fileId string) error {
	args := m.Called(ctx, fileId)
	return args.Error(0)
}

func (m *MockStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, uid string) (models.User, error) {
	args := m.Called(ctx, uid)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUserByProvider(ctx context.Context, provider string, providerId string) (models.User, error) {
	args := m.Called(ctx, provider, providerId)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) UpdateUserProfile(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStore) SetUserLists(ctx context.Context, uid string, favorites []string, recents []string) error {
	args := m.Called(ctx, uid, favorites, recents)
	return args.Error(0)
}

func (m *MockStore) SetUserMessages(ctx context.Context, uid string, messages []models.UserMessage) error {
	args := m.Called(ctx, uid, messages)
	return args.Error(0)
}

func (m *MockStore) DeleteUser(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}
