package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/copaint/copaint/models"
)

func TestNotifyUser_CapsStoredMessages(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	existing := make([]models.UserMessage, 50)
	for i := range existing {
		existing[i] = models.UserMessage{Id: fmt.Sprintf("m%d", i)}
	}
	mockStore.On("GetUser", ctx, "owner").Return(models.User{Uid: "owner", Messages: existing}, nil)
	mockStore.On("SetUserMessages", ctx, "owner", mock.MatchedBy(func(msgs []models.UserMessage) bool {
		// Cap holds: newest kept at the front, oldest dropped off the back
		return len(msgs) == 50 && msgs[0].FileId == "file1" && msgs[49].Id == "m48"
	})).Return(nil)
	mockCache.On("Publish", ctx, "user-message", mock.Anything).Return(nil)

	err := svc.NotifyUser(ctx, "owner", models.UserMessage{Type: "permission_request", FileId: "file1", FromUid: "user2"})

	assert.NoError(t, err)
	mockStore.AssertExpectations(t)
}

func TestNotifyUser_StoreFailureSkipsPublish(t *testing.T) {
	svc, mockStore, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	mockStore.On("GetUser", ctx, "owner").Return(models.User{Uid: "owner"}, nil)
	mockStore.On("SetUserMessages", ctx, "owner", mock.Anything).Return(assert.AnError)

	err := svc.NotifyUser(ctx, "owner", models.UserMessage{Type: "permission_request", FileId: "file1"})

	assert.Error(t, err)
	mockCache.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
