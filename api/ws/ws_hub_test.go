package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	cachemocks "github.com/copaint/copaint/cache/mocks"
	"github.com/copaint/copaint/models"
)

// The hub loop drains each channel as soon as it is sent to, so a short
// pause between sends fixes the processing order.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

func TestOpenSessionEnforcesPerConnectionCap(t *testing.T) {
	client := NewClient(nil, nil, models.User{Uid: "u1"}, nil)

	for i := 0; i < maxFilesPerConnection; i++ {
		fileId := string(rune('a' + i))
		assert.NoError(t, client.OpenSession(fileId, nil, func() {}))
	}

	assert.ErrorIs(t, client.OpenSession("one-too-many", nil, func() {}), errTooManyOpenFiles)
	assert.ErrorIs(t, client.OpenSession("a", nil, func() {}), errFileAlreadyOpen)

	// Closing a file frees a slot
	assert.True(t, client.CloseSession("a"))
	assert.NoError(t, client.OpenSession("one-too-many", nil, func() {}))
}

func TestHubIgnoresSubscribeFromClosedClient(t *testing.T) {
	mockCache := new(cachemocks.MockCache)
	hub := NewHub(mockCache)
	go hub.Run()

	client := NewClient(hub, nil, models.User{Uid: "u1"}, nil)
	hub.OpenCh <- client
	settle()

	// Close races ahead of a queued subscribe; the late subscribe must not
	// re-add the client or open a Redis subscription for it
	hub.CloseCh <- client
	settle()
	hub.SubscribeCh <- subscription{client: client, fileId: "file1"}
	settle()

	mockCache.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)

	// A registered client still subscribes normally
	subscribed := make(chan struct{})
	mockCache.On("Subscribe", mock.Anything, "file:file1", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		close(subscribed)
	})

	live := NewClient(hub, nil, models.User{Uid: "u2"}, nil)
	hub.OpenCh <- live
	settle()
	hub.SubscribeCh <- subscription{client: live, fileId: "file1"}

	select {
	case <-subscribed:
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for redis subscription")
	}
}

func TestHubDeliversUserNotifications(t *testing.T) {
	mockCache := new(cachemocks.MockCache)
	hub := NewHub(mockCache)
	go hub.Run()

	client := NewClient(hub, nil, models.User{Uid: "u1"}, nil)
	hub.OpenCh <- client
	settle()

	hub.UserMessageCh <- userNotification{userId: "u1", message: []byte(`{"type":"notification"}`)}

	select {
	case msg := <-client.Send:
		assert.JSONEq(t, `{"type":"notification"}`, string(msg))
	case <-time.After(time.Second):
		assert.Fail(t, "timed out waiting for notification")
	}

	// Other users' connections see nothing
	other := NewClient(hub, nil, models.User{Uid: "u2"}, nil)
	hub.OpenCh <- other
	settle()
	hub.UserMessageCh <- userNotification{userId: "u1", message: []byte(`{"type":"notification"}`)}
	settle()
	assert.Empty(t, other.Send)
}
