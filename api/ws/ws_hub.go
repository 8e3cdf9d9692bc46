package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/copaint/copaint/cache"
	"github.com/copaint/copaint/service"
)

type subscription struct {
	client *Client
	fileId string
}

type fileBroadcast struct {
	fileId  string
	message []byte
}

type userNotification struct {
	userId  string
	message []byte
}

// Hub maintains the set of active clients and the per-file Redis
// subscriptions that feed their sessions.
type Hub struct {
	copaintCache           cache.CoPaintCache
	OpenCh                 chan *Client
	CloseCh                chan *Client
	SubscribeCh            chan subscription
	UnsubscribeCh          chan subscription
	UserDeletedCh          chan string
	UserMessageCh          chan userNotification
	broadcastCh            chan fileBroadcast
	userToClients          map[string]map[*Client]struct{}
	fileToClients          map[string]map[*Client]struct{}
	fileToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(copaintCache cache.CoPaintCache) *Hub {
	return &Hub{
		copaintCache:           copaintCache,
		OpenCh:                 make(chan *Client, 256),
		CloseCh:                make(chan *Client, 256),
		SubscribeCh:            make(chan subscription, 1024),
		UnsubscribeCh:          make(chan subscription, 1024),
		UserDeletedCh:          make(chan string, 64),
		UserMessageCh:          make(chan userNotification, 256),
		broadcastCh:            make(chan fileBroadcast, 1024),
		userToClients:          make(map[string]map[*Client]struct{}),
		fileToClients:          make(map[string]map[*Client]struct{}),
		fileToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerUser = 3
	maxFilesPerConnection = 10
)

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.OpenCh:
			if _, ok := h.userToClients[client.user.Uid]; !ok {
				h.userToClients[client.user.Uid] = make(map[*Client]struct{})
			}

			if len(h.userToClients[client.user.Uid]) >= maxConnectionsPerUser {
				log.Printf("User %s reached max connections (%d)", client.user.Uid, maxConnectionsPerUser)
				client.cancel()
				client.conn.Close()
				continue
			}

			h.userToClients[client.user.Uid][client] = struct{}{}

		case client := <-h.CloseCh:
			for fileId := range client.subscribedFiles {
				delete(h.fileToClients[fileId], client)
				if len(h.fileToClients[fileId]) == 0 {
					if cancel, ok := h.fileToSubscriberCancel[fileId]; ok {
						cancel()
						delete(h.fileToSubscriberCancel, fileId)
					}
					delete(h.fileToClients, fileId)
				}
			}
			delete(h.userToClients[client.user.Uid], client)
			if len(h.userToClients[client.user.Uid]) == 0 {
				delete(h.userToClients, client.user.Uid)
			}

		case sub := <-h.SubscribeCh:
			// The client's close may already have been processed; wiring a
			// gone client back in would leak the file's Redis subscription
			if _, ok := h.userToClients[sub.client.user.Uid][sub.client]; !ok {
				continue
			}
			if h.fileToClients[sub.fileId] == nil {
				ctx, cancel := context.WithCancel(context.Background())
				fileId := sub.fileId
				channel := service.FileChannel(fileId)

				// Fan-out happens on the hub goroutine, which owns the
				// client maps; the callback only hands the message over
				err := h.copaintCache.Subscribe(ctx, channel, func(messageBytes []byte) {
					h.broadcastCh <- fileBroadcast{fileId: fileId, message: messageBytes}
				})
				if err != nil {
					log.Printf("Failed to create redis sub for channel %s: %v", channel, err)
					cancel()
					continue
				}

				h.fileToClients[sub.fileId] = make(map[*Client]struct{})
				h.fileToSubscriberCancel[sub.fileId] = cancel
			}
			h.fileToClients[sub.fileId][sub.client] = struct{}{}
			sub.client.subscribedFiles[sub.fileId] = struct{}{}

		case unsub := <-h.UnsubscribeCh:
			delete(h.fileToClients[unsub.fileId], unsub.client)
			delete(unsub.client.subscribedFiles, unsub.fileId)
			if len(h.fileToClients[unsub.fileId]) == 0 {
				if cancel, ok := h.fileToSubscriberCancel[unsub.fileId]; ok {
					cancel()
					delete(h.fileToSubscriberCancel, unsub.fileId)
				}
				delete(h.fileToClients, unsub.fileId)
			}

		case broadcast := <-h.broadcastCh:
			// DeliverRemote never blocks, so a slow session cannot stall
			// the hub loop
			for client := range h.fileToClients[broadcast.fileId] {
				client.DeliverRemote(broadcast.fileId, broadcast.message)
			}

		case note := <-h.UserMessageCh:
			for client := range h.userToClients[note.userId] {
				client.SendMessage(note.message)
			}

		case userId := <-h.UserDeletedCh:
			// Closing the connection unwinds the read pump, which tears
			// down sessions and reports back through CloseCh
			for client := range h.userToClients[userId] {
				client.cancel()
				client.conn.Close()
			}
		}
	}
}

func (h *Hub) InitSubscriptions(shutdownCtx context.Context) error {
	err := h.copaintCache.Subscribe(shutdownCtx, "user-deleted", func(message []byte) {
		var userDeletedMsg service.UserDeletedMessage
		if err := json.Unmarshal(message, &userDeletedMsg); err == nil {
			h.UserDeletedCh <- userDeletedMsg.UserId
		}
	})
	if err != nil {
		log.Printf("WS hub failed to subscribe to user-deleted: %v", err)
		return err
	}

	err = h.copaintCache.Subscribe(shutdownCtx, "user-message", func(message []byte) {
		var event service.UserMessageEvent
		if err := json.Unmarshal(message, &event); err != nil {
			return
		}
		clientBytes, err := json.Marshal(map[string]any{"type": "notification", "data": event.Message})
		if err != nil {
			return
		}
		h.UserMessageCh <- userNotification{userId: event.UserId, message: clientBytes}
	})
	if err != nil {
		log.Printf("WS hub failed to subscribe to user-message: %v", err)
		return err
	}

	return nil
}
