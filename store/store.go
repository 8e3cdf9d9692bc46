package store

import (
	"context"
	"errors"
	"time"

	"github.com/copaint/copaint/models"
)

type CoPaintStore interface {
	CreateFile(ctx context.Context, file models.File) (models.File, error)
	GetFile(ctx context.Context, fileId string) (models.File, error)
	ListFilesByOwner(ctx context.Context, ownerId string, recycled bool) ([]models.File, error)
	RenameFile(ctx context.Context, fileId string, newName string) error
	SetRecycled(ctx context.Context, fileId string, recycled bool) error
	DeleteFile(ctx context.Context, fileId string) error
	UpdateFileContent(ctx context.Context, fileId string, content models.CanvasContent) error
	SetCollaborators(ctx context.Context, fileId string, collaborators []models.Collaborator) error
	TransferOwner(ctx context.Context, fileId string, newOwnerId string, collaborators []models.Collaborator) error
	SetShareSettings(ctx context.Context, fileId string, shareCode string, enablePassword bool, password string, permission models.Permission) error

	AppendOperation(ctx context.Context, op models.Operation) (models.Operation, error)
	ListOperationsSince(ctx context.Context, fileId string, since time.Time, limit int32) ([]models.Operation, error)
	DeleteExpiredOperations(ctx context.Context, fileId string, olderThan time.Time, batchSize int) (int, error)
	DeleteFileOperations(ctx context.Context, fileId string) error

	CreatePermissionRequest(ctx context.Context, req models.PermissionRequest) (models.PermissionRequest, error)
	ListPermissionRequests(ctx context.Context, fileId string) ([]models.PermissionRequest, error)
	ResolvePermissionRequest(ctx context.Context, fileId string, requestId string, status models.RequestStatus, processedBy string) error
	DeleteFilePermissionRequests(ctx context.Context, fileId string) error

	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, uid string) (models.User, error)
	GetUserByProvider(ctx context.Context, provider string, providerId string) (models.User, error)
	UpdateUserProfile(ctx context.Context, user models.User) error
	SetUserLists(ctx context.Context, uid string, favorites []string, recents []string) error
	SetUserMessages(ctx context.Context, uid string, messages []models.UserMessage) error
	DeleteUser(ctx context.Context, uid string) error
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)
