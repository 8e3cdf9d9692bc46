package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/service"
	"github.com/copaint/copaint/store"
)

func TestGenerateShareLink_OwnerOnly(t *testing.T) {
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

	_, err := svc.GenerateShareLink(ctx, "file1", "editor", models.PermissionRead, false, "")

	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}

func TestGenerateShareLink_InvalidPermission(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)

	_, err := svc.GenerateShareLink(context.Background(), "file1", "owner", models.PermissionNone, false, "")

	assert.ErrorIs(t, err, service.ErrInvalidPermission)
	mockStore.AssertNotCalled(t, "GetFile", mock.Anything, mock.Anything)
}

func TestGenerateShareLink_Success(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("SetShareSettings", ctx, "file1", mock.Anything, true, "hunter2", models.PermissionEdit).Return(nil)

	link, err := svc.GenerateShareLink(ctx, "file1", "owner", models.PermissionEdit, true, "hunter2")

	assert.NoError(t, err)
	assert.NotEmpty(t, link.Code)
	assert.True(t, strings.HasPrefix(link.URL, "https://copaint.example.com/canvas/file1?share="))
	assert.True(t, link.Password)
	mockStore.AssertExpectations(t)
}

func TestSetSharePassword_KeepsCodeAndLevel(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{Id: "file1", OwnerId: "owner", ShareLink: "code1", SharePermission: models.PermissionRead}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)
	mockStore.On("SetShareSettings", ctx, "file1", "code1", true, "hunter2", models.PermissionRead).Return(nil)

	err := svc.SetSharePassword(ctx, "file1", "owner", true, "hunter2")

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestSetSharePassword_NoActiveLink(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)

	err := svc.SetSharePassword(ctx, "file1", "owner", true, "hunter2")

	assert.ErrorIs(t, err, service.ErrInvalidShareCode)
	mockStore.AssertNotCalled(t, "SetShareSettings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinByShareLink_WrongCode(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{Id: "file1", OwnerId: "owner", ShareLink: "real-code", SharePermission: models.PermissionRead}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	_, err := svc.JoinByShareLink(ctx, "file1", "user2", "fake-code", "")

	assert.ErrorIs(t, err, service.ErrInvalidShareCode)
}

func TestJoinByShareLink_NoActiveLink(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)

	_, err := svc.JoinByShareLink(ctx, "file1", "user2", "", "")

	assert.ErrorIs(t, err, service.ErrInvalidShareCode)
}

func TestJoinByShareLink_WrongPassword(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id: "file1", OwnerId: "owner",
		ShareLink: "code", EnablePassword: true, SharePassword: "hunter2",
		SharePermission: models.PermissionRead,
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	_, err := svc.JoinByShareLink(ctx, "file1", "user2", "code", "wrong")

	assert.ErrorIs(t, err, service.ErrInvalidSharePassword)
}

func TestJoinByShareLink_Grants(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id: "file1", OwnerId: "owner",
		ShareLink: "code", SharePermission: models.PermissionRead,
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)
	mockStore.On("SetCollaborators", ctx, "file1", []models.Collaborator{
		{UserId: "user2", Permission: models.PermissionRead},
	}).Return(nil)

	permission, err := svc.JoinByShareLink(ctx, "file1", "user2", "code", "")

	assert.NoError(t, err)
	assert.Equal(t, models.PermissionRead, permission)
	mockStore.AssertExpectations(t)
}

func TestJoinByShareLink_UpgradeOnly(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	// An edit collaborator redeems a read link and keeps edit
	file := models.File{
		Id: "file1", OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "editor", Permission: models.PermissionEdit},
		},
		ShareLink: "code", SharePermission: models.PermissionRead,
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	permission, err := svc.JoinByShareLink(ctx, "file1", "editor", "code", "")

	assert.NoError(t, err)
	assert.Equal(t, models.PermissionEdit, permission)
	mockStore.AssertNotCalled(t, "SetCollaborators", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestPermission_AlreadyGranted(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	file := models.File{
		Id: "file1", OwnerId: "owner",
		Collaborators: []models.Collaborator{
			{UserId: "editor", Permission: models.PermissionEdit},
		},
	}
	mockStore.On("GetFile", ctx, "file1").Return(file, nil)

	_, err := svc.RequestPermission(ctx, "file1", "editor", models.PermissionRead, "")

	assert.Error(t, err)
	mockStore.AssertNotCalled(t, "CreatePermissionRequest", mock.Anything, mock.Anything)
}

func TestRequestPermission_Creates(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("CreatePermissionRequest", ctx, mock.MatchedBy(func(r models.PermissionRequest) bool {
		return r.FileId == "file1" && r.RequesterId == "user2" && r.RequestedPermission == models.PermissionEdit
	})).Return(models.PermissionRequest{Id: "req1", Status: models.RequestPending}, nil)
	mockStore.On("GetUser", mock.Anything, "owner").Return(models.User{Uid: "owner"}, nil)
	mockStore.On("SetUserMessages", mock.Anything, "owner", mock.Anything).Return(nil)
	publishDone := wrapMockWithSignal(mockCache.On("Publish", mock.Anything, "user-message", mock.Anything).Return(nil))

	req, err := svc.RequestPermission(ctx, "file1", "user2", models.PermissionEdit, "please")

	assert.NoError(t, err)
	assert.Equal(t, "req1", req.Id)
	assert.Equal(t, models.RequestPending, req.Status)
	waitFor(t, publishDone, "owner notification")
}

func TestRequestPermission_NotifiesOwner(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("CreatePermissionRequest", ctx, mock.Anything).Return(models.PermissionRequest{Id: "req1"}, nil)
	mockStore.On("GetUser", mock.Anything, "owner").Return(models.User{
		Uid:      "owner",
		Messages: []models.UserMessage{{Id: "old", Type: "permission_request"}},
	}, nil)

	savedDone := wrapMockWithSignal(mockStore.On("SetUserMessages", mock.Anything, "owner", mock.MatchedBy(func(msgs []models.UserMessage) bool {
		// Newest first, previous messages preserved
		return len(msgs) == 2 &&
			msgs[0].Type == "permission_request" &&
			msgs[0].FileId == "file1" &&
			msgs[0].FromUid == "user2" &&
			msgs[0].Text == "please" &&
			msgs[0].Id != "" &&
			msgs[0].Timestamp > 0 &&
			msgs[1].Id == "old"
	})).Return(nil))
	publishDone := wrapMockWithSignal(mockCache.On("Publish", mock.Anything, "user-message", mock.Anything).Return(nil))

	_, err := svc.RequestPermission(ctx, "file1", "user2", models.PermissionEdit, "please")

	assert.NoError(t, err)
	waitFor(t, savedDone, "message store")
	waitFor(t, publishDone, "message publish")
}

func TestResolvePermissionRequest_Approve(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("ListPermissionRequests", ctx, "file1").Return([]models.PermissionRequest{
		{Id: "req1", FileId: "file1", RequesterId: "user2", RequestedPermission: models.PermissionEdit, Status: models.RequestPending},
	}, nil)
	mockStore.On("ResolvePermissionRequest", ctx, "file1", "req1", models.RequestApproved, "owner").Return(nil)
	mockStore.On("SetCollaborators", ctx, "file1", []models.Collaborator{
		{UserId: "user2", Permission: models.PermissionEdit},
	}).Return(nil)

	err := svc.ResolvePermissionRequest(ctx, "file1", "owner", "req1", true)

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestResolvePermissionRequest_RejectLeavesCollaborators(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("ListPermissionRequests", ctx, "file1").Return([]models.PermissionRequest{
		{Id: "req1", FileId: "file1", RequesterId: "user2", RequestedPermission: models.PermissionEdit, Status: models.RequestPending},
	}, nil)
	mockStore.On("ResolvePermissionRequest", ctx, "file1", "req1", models.RequestRejected, "owner").Return(nil)

	err := svc.ResolvePermissionRequest(ctx, "file1", "owner", "req1", false)

	assert.NoError(t, err)
	mockStore.AssertNotCalled(t, "SetCollaborators", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolvePermissionRequest_AlreadyResolved(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("ListPermissionRequests", ctx, "file1").Return([]models.PermissionRequest{
		{Id: "req1", FileId: "file1", RequesterId: "user2", RequestedPermission: models.PermissionEdit, Status: models.RequestApproved},
	}, nil)

	err := svc.ResolvePermissionRequest(ctx, "file1", "owner", "req1", true)

	assert.ErrorIs(t, err, service.ErrRequestResolved)
	mockStore.AssertNotCalled(t, "ResolvePermissionRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolvePermissionRequest_LosesConditionalRace(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	// The request looks pending when listed, but another resolver wins the
	// conditional write
	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)
	mockStore.On("ListPermissionRequests", ctx, "file1").Return([]models.PermissionRequest{
		{Id: "req1", FileId: "file1", RequesterId: "user2", RequestedPermission: models.PermissionEdit, Status: models.RequestPending},
	}, nil)
	mockStore.On("ResolvePermissionRequest", ctx, "file1", "req1", models.RequestApproved, "owner").Return(store.ErrConditionFailed)

	err := svc.ResolvePermissionRequest(ctx, "file1", "owner", "req1", true)

	assert.ErrorIs(t, err, service.ErrRequestResolved)
	mockStore.AssertNotCalled(t, "SetCollaborators", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolvePermissionRequest_NotOwner(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetFile", ctx, "file1").Return(models.File{Id: "file1", OwnerId: "owner"}, nil)

	err := svc.ResolvePermissionRequest(ctx, "file1", "stranger", "req1", true)

	assert.ErrorIs(t, err, service.ErrPermissionDenied)
}
