package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/copaint/copaint/models"
)

const (
	maxRecents  = 20
	maxMessages = 50
)

func (s *Service) UpdateProfile(ctx context.Context, user models.User, nickname string, theme string) error {
	if nickname != "" {
		user.Nickname = nickname
	}
	if theme != "" {
		user.Theme = theme
	}

	return s.Store.UpdateUserProfile(ctx, user)
}

// ToggleFavorite adds the file to the user's favorites, or removes it when
// already present.
func (s *Service) ToggleFavorite(ctx context.Context, user models.User, fileId string) ([]string, error) {
	favorites := make([]string, 0, len(user.Favorites)+1)
	removed := false
	for _, id := range user.Favorites {
		if id == fileId {
			removed = true
			continue
		}
		favorites = append(favorites, id)
	}
	if !removed {
		favorites = append(favorites, fileId)
	}

	if err := s.Store.SetUserLists(ctx, user.Uid, favorites, user.Recents); err != nil {
		return nil, err
	}

	return favorites, nil
}

// TouchRecent moves the file to the front of the user's recents, capped.
func (s *Service) TouchRecent(ctx context.Context, user models.User, fileId string) error {
	recents := make([]string, 0, len(user.Recents)+1)
	recents = append(recents, fileId)
	for _, id := range user.Recents {
		if id == fileId {
			continue
		}
		recents = append(recents, id)
	}
	if len(recents) > maxRecents {
		recents = recents[:maxRecents]
	}

	return s.Store.SetUserLists(ctx, user.Uid, user.Favorites, recents)
}

// UserMessageEvent is the pub/sub envelope for an in-app notification; the
// websocket hub routes it to whichever instance holds the user's connections.
type UserMessageEvent struct {
	UserId  string             `json:"userId"`
	Message models.UserMessage `json:"message"`
}

// NotifyUser stores a message on the user's profile, newest first and
// capped, then publishes it so open connections see it immediately.
func (s *Service) NotifyUser(ctx context.Context, userId string, msg models.UserMessage) error {
	msgId, err := uuid.NewV4()
	if err != nil {
		return err
	}
	msg.Id = msgId.String()
	msg.Timestamp = time.Now().UnixMilli()

	user, err := s.Store.GetUser(ctx, userId)
	if err != nil {
		return err
	}

	messages := append([]models.UserMessage{msg}, user.Messages...)
	if len(messages) > maxMessages {
		messages = messages[:maxMessages]
	}

	if err := s.Store.SetUserMessages(ctx, userId, messages); err != nil {
		return err
	}

	if msgBytes, err := json.Marshal(UserMessageEvent{UserId: userId, Message: msg}); err == nil {
		if err := s.Cache.Publish(ctx, "user-message", msgBytes); err != nil {
			log.Printf("Failed to publish user message for %s: %v", userId, err)
		}
	}

	return nil
}

type UserDeletedMessage struct {
	UserId string `json:"userId"`
}

// DeleteUser removes the account and permanently deletes every file the
// user owns, recycled or not. Files the user collaborates on are untouched.
func (s *Service) DeleteUser(ctx context.Context, user models.User) error {
	if err := s.Store.DeleteUser(ctx, user.Uid); err != nil {
		return err
	}

	// Tell connected instances to drop this user's websocket sessions
	if msgBytes, err := json.Marshal(UserDeletedMessage{UserId: user.Uid}); err == nil {
		if err := s.Cache.Publish(ctx, "user-deleted", msgBytes); err != nil {
			log.Printf("Failed to publish user-deleted for %s: %v", user.Uid, err)
		}
	}

	for _, recycled := range []bool{false, true} {
		files, err := s.Store.ListFilesByOwner(ctx, user.Uid, recycled)
		if err != nil {
			log.Printf("Failed to list files for deleted user %s: %v", user.Uid, err)
			continue
		}
		for _, f := range files {
			if err := s.PermanentlyDeleteFile(ctx, f.Id, user.Uid); err != nil {
				log.Printf("Failed to delete file %s for deleted user %s: %v", f.Id, user.Uid, err)
			}
		}
	}

	return nil
}
