package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	cachemocks "github.com/copaint/copaint/cache/mocks"
	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/mq"
	mqmocks "github.com/copaint/copaint/mq/mocks"
	"github.com/copaint/copaint/service"
	"github.com/copaint/copaint/store"
	storemocks "github.com/copaint/copaint/store/mocks"
	"github.com/copaint/copaint/worker"
)

// Helper to setup the service with mocks
func setupService(t *testing.T) (*service.Service, *storemocks.MockStore, *cachemocks.MockCache, *mqmocks.MockMQ, *worker.Janitor) {
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)
	mockMQ := new(mqmocks.MockMQ)

	// A real janitor, not running; tests read its touch channel
	janitor := worker.NewJanitor(mockStore, time.Minute)

	svc, err := service.NewService(
		mockStore,
		mockCache,
		mockMQ,
		janitor,
		nil,
		[]byte("secret"),
		"https://copaint.example.com",
	)
	assert.NoError(t, err)

	return svc, mockStore, mockCache, mockMQ, janitor
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func waitFor(t *testing.T, done chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "timed out waiting for "+what)
	}
}

func TestCreateFile_InvalidName(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)

	_, err := svc.CreateFile(context.Background(), "user1", "", models.CanvasContent{})

	assert.Error(t, err)
	mockStore.AssertNotCalled(t, "CreateFile", mock.Anything, mock.Anything)
}

func TestGetFile_PermissionDenied(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)

	_, err := svc.GetFile(ctx, "file1", "stranger")

	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestGetFile_Collaborator(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id:      "file1",
		OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "reader", Permission: models.PermissionRead},
		},
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	got, err := svc.GetFile(ctx, "file1", "reader")

	assert.NoError(t, err)
	assert.Equal(t, "file1", got.Id)
}

func TestGetFile_NotFound(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "missing").Return(models.File{}, store.ErrItemNotFound)

	_, err := svc.GetFile(ctx, "missing", "user1")

	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestRenameFile_EditCollaborator(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id: "file1", OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "editor", Permission: models.PermissionEdit},
		},
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)
	mockStore.On("RenameFile", ctx, "file1", "renamed").Return(nil)

	err := svc.RenameFile(ctx, "file1", "editor", "renamed")

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestRenameFile_ReaderDenied(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id: "file1", OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "reader", Permission: models.PermissionRead},
		},
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	err := svc.RenameFile(ctx, "file1", "reader", "renamed")

	assert.ErrorIs(t, err, service.ErrPermissionDenied)
	mockStore.AssertNotCalled(t, "RenameFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestListFiles_SplitsRecycled(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	active := []models.File{{Id: "file1", FileName: "sketch", OwnerId: "owner"}}
	recycled := []models.File{{Id: "file2", FileName: "old", OwnerId: "owner", RecycleTag: true}}
	mockStore.On("ListFilesByOwner", ctx, "owner", false).Return(active, nil)
	mockStore.On("ListFilesByOwner", ctx, "owner", true).Return(recycled, nil)

	got, err := svc.ListFiles(ctx, "owner")
	assert.NoError(t, err)
	assert.Equal(t, active, got)

	got, err = svc.ListRecycledFiles(ctx, "owner")
	assert.NoError(t, err)
	assert.Equal(t, recycled, got)
}

func TestRecycleFile_EditCollaboratorCannot(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id:      "file1",
		OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "editor", Permission: models.PermissionEdit},
		},
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	err := svc.RecycleFile(ctx, "file1", "editor")

	assert.ErrorIs(t, err, service.ErrPermissionDenied)
	mockStore.AssertNotCalled(t, "SetRecycled", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecycleAndRestore_Owner(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("SetRecycled", ctx, "file1", true).Return(nil)
	mockStore.On("SetRecycled", ctx, "file1", false).Return(nil)

	assert.NoError(t, svc.RecycleFile(ctx, "file1", "owner"))
	assert.NoError(t, svc.RestoreFile(ctx, "file1", "owner"))
	mockStore.AssertExpectations(t)
}

func TestPermanentlyDeleteFile_EnqueuesPurge(t *testing.T) {
	svc, mockStore, mockCache, mockMQ, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("DeleteFile", ctx, "file1").Return(nil)

	sendDone := wrapMockWithSignal(mockMQ.On("Send", mock.Anything, mock.MatchedBy(func(body string) bool {
		var job mq.PurgeJob
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return false
		}
		// Stamped at deletion time, not copied from the recycle record
		return job.FileId == "file1" && job.DeletedBy == "owner" && job.DeletedAt > 0
	})).Return(nil))
	invalidateDone := wrapMockWithSignal(mockCache.On("InvalidateFiles", mock.Anything, []string{"file1"}).Return(nil))

	err := svc.PermanentlyDeleteFile(ctx, "file1", "owner")

	assert.NoError(t, err)
	waitFor(t, sendDone, "purge enqueue")
	waitFor(t, invalidateDone, "cache invalidation")
}

func TestPermanentlyDeleteFile_NotOwner(t *testing.T) {
	svc, mockStore, _, mockMQ, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)

	err := svc.PermanentlyDeleteFile(ctx, "file1", "stranger")

	assert.ErrorIs(t, err, service.ErrPermissionDenied)
	mockStore.AssertNotCalled(t, "DeleteFile", mock.Anything, mock.Anything)
	mockMQ.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestCopyFile_AppendsSuffix(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	source := models.File{
		Id:      "file1",
		OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "reader", Permission: models.PermissionRead},
		},
		FileName: "design",
		Content:  models.CanvasContent{Width: 800, Height: 600},
	}
	mockStore.On("GetFile", ctx, "file1").Return(source, nil)
	mockStore.On("CreateFile", ctx, mock.MatchedBy(func(f models.File) bool {
		return f.FileName == "design-copy" && f.OwnerId == "reader" && len(f.Collaborators) == 0
	})).Return(models.File{Id: "file2", FileName: "design-copy", OwnerId: "reader"}, nil)

	copied, err := svc.CopyFile(ctx, "file1", "reader")

	assert.NoError(t, err)
	assert.Equal(t, "file2", copied.Id)
	mockStore.AssertExpectations(t)
}

func TestCopyFile_RecycledSource(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner", RecycleTag: true}, nil)

	_, err := svc.CopyFile(ctx, "file1", "owner")

	assert.ErrorIs(t, err, service.ErrFileRecycled)
}

func TestTransferOwnership(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id:      "file1",
		OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "newOwner", Permission: models.PermissionRead},
			{UserId: "other", Permission: models.PermissionEdit},
		},
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)
	mockStore.On("GetUser", ctx, "newOwner").Return(models.User{Uid: "newOwner"}, nil)
	mockStore.On("TransferOwner", ctx, "file1", "newOwner", mock.MatchedBy(func(collabs []models.Collaborator) bool {
		// New owner leaves the list, old owner joins with edit
		hasOldOwner := false
		for _, c := range collabs {
			if c.UserId == "newOwner" {
				return false
			}
			if c.UserId == "owner" && c.Permission == models.PermissionEdit {
				hasOldOwner = true
			}
		}
		return hasOldOwner && len(collabs) == 2
	})).Return(nil)

	err := svc.TransferOwnership(ctx, "file1", "owner", "newOwner")

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestTransferOwnership_ToSelfIsNoop(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)

	err := svc.TransferOwnership(ctx, "file1", "owner", "owner")

	assert.NoError(t, err)
	mockStore.AssertNotCalled(t, "TransferOwner", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
