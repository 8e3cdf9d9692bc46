package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	cachemocks "github.com/copaint/copaint/cache/mocks"
	"github.com/copaint/copaint/mq"
	mqmocks "github.com/copaint/copaint/mq/mocks"
	storemocks "github.com/copaint/copaint/store/mocks"
	"github.com/copaint/copaint/worker"
)

func purgeMessage(t *testing.T, fileId string) *mq.Message {
	t.Helper()
	body, err := json.Marshal(mq.PurgeJob{FileId: fileId, DeletedBy: "owner", DeletedAt: time.Now().Unix()})
	assert.NoError(t, err)
	return &mq.Message{Id: "msg1", Body: string(body)}
}

func TestPurgeConsumer_ProcessesJob(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)

	msg := purgeMessage(t, "file1")
	mockMQ.On("Receive", mock.Anything, int32(300)).Return(msg, nil).Once()
	mockMQ.On("Receive", mock.Anything, int32(300)).Return(nil, context.Canceled)

	mockStore.On("DeleteFileOperations", mock.Anything, "file1").Return(nil)
	mockStore.On("DeleteFilePermissionRequests", mock.Anything, "file1").Return(nil)
	mockCache.On("InvalidateFiles", mock.Anything, []string{"file1"}).Return(nil)
	mockMQ.On("Delete", mock.Anything, msg).Return(nil)

	done := make(chan struct{})
	go func() {
		worker.NewPurgeConsumer(mockMQ, mockStore, mockCache).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "consumer did not stop on cancelled receive")
	}

	mockStore.AssertExpectations(t)
	mockCache.AssertExpectations(t)
	mockMQ.AssertExpectations(t)
}

func TestPurgeConsumer_StoreErrorKeepsMessage(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)

	msg := purgeMessage(t, "file1")
	mockMQ.On("Receive", mock.Anything, int32(300)).Return(msg, nil).Once()
	mockMQ.On("Receive", mock.Anything, int32(300)).Return(nil, context.Canceled)

	mockStore.On("DeleteFileOperations", mock.Anything, "file1").Return(fmt.Errorf("throttled"))

	done := make(chan struct{})
	go func() {
		worker.NewPurgeConsumer(mockMQ, mockStore, mockCache).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "consumer did not stop on cancelled receive")
	}

	// The message stays on the queue for redelivery
	mockMQ.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	mockStore.AssertNotCalled(t, "DeleteFilePermissionRequests", mock.Anything, mock.Anything)
}

func TestPurgeConsumer_SkipsMalformedBody(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)

	mockMQ.On("Receive", mock.Anything, int32(300)).
		Return(&mq.Message{Id: "msg1", Body: "not json"}, nil).Once()
	mockMQ.On("Receive", mock.Anything, int32(300)).Return(nil, context.Canceled)

	done := make(chan struct{})
	go func() {
		worker.NewPurgeConsumer(mockMQ, mockStore, mockCache).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "consumer did not stop on cancelled receive")
	}

	mockStore.AssertNotCalled(t, "DeleteFileOperations", mock.Anything, mock.Anything)
}
