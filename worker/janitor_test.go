package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	storemocks "github.com/copaint/copaint/store/mocks"
	"github.com/copaint/copaint/worker"
)

func TestJanitor_TouchTriggersCleanup(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	janitor := worker.NewJanitor(mockStore, time.Minute)

	done := make(chan struct{})
	mockStore.On("DeleteExpiredOperations", mock.Anything, "file1", mock.Anything, 100).
		Return(5, nil).
		Run(func(args mock.Arguments) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go janitor.Run(ctx)

	janitor.Touch("file1")

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for cleanup")
	}
	mockStore.AssertExpectations(t)
}

func TestJanitor_FullBatchRecurses(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	janitor := worker.NewJanitor(mockStore, time.Minute)

	// First batch comes back full, so another is requested
	mockStore.On("DeleteExpiredOperations", mock.Anything, "file1", mock.Anything, 100).
		Return(100, nil).Once()
	done := make(chan struct{})
	mockStore.On("DeleteExpiredOperations", mock.Anything, "file1", mock.Anything, 100).
		Return(17, nil).Once().
		Run(func(args mock.Arguments) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go janitor.Run(ctx)

	janitor.Touch("file1")

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for second batch")
	}
	mockStore.AssertExpectations(t)
}

func TestJanitor_TouchNeverBlocks(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	janitor := worker.NewJanitor(mockStore, time.Minute)

	// Nothing is draining TouchCh; far more touches than the buffer holds
	// must still return promptly
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			janitor.Touch("file1")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "Touch blocked on a full channel")
	}
}
