package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/copaint/copaint/models"
)

// FileChannel is the pub/sub channel carrying realtime messages for a file.
func FileChannel(fileId string) string {
	return "file:" + fileId
}

type FileUpdateMessage struct {
	Type string         `json:"type"`
	Data FileUpdateData `json:"data"`
}

type FileUpdateData struct {
	FileId  string               `json:"fileId"`
	UserId  string               `json:"userId"`
	Content models.CanvasContent `json:"content"`
}

type OperationMessage struct {
	Type string           `json:"type"`
	Data models.Operation `json:"data"`
}

type PresenceMessage struct {
	Type string       `json:"type"`
	Data PresenceData `json:"data"`
}

type PresenceData struct {
	FileId string   `json:"fileId"`
	Users  []string `json:"users"`
}

// UpdateFileContent replaces the file's canvas snapshot wholesale. The write
// is last-writer-wins; there is no merging of concurrent snapshots. The edit
// permission is re-checked here, a client's claim about its own permission
// is never trusted.
func (s *Service) UpdateFileContent(ctx context.Context, fileId string, userId string, content models.CanvasContent) error {
	file, err := s.getFileChecked(ctx, fileId, userId, models.PermissionEdit)
	if err != nil {
		return err
	}
	if file.RecycleTag {
		return ErrFileRecycled
	}

	if err := s.Store.UpdateFileContent(ctx, fileId, content); err != nil {
		return err
	}

	// Async side-effects, caller does not wait on them
	go func() {
		msg := FileUpdateMessage{
			Type: "file_update",
			Data: FileUpdateData{FileId: fileId, UserId: userId, Content: content},
		}
		if msgBytes, err := json.Marshal(msg); err == nil {
			if err := s.Cache.Publish(context.Background(), FileChannel(fileId), msgBytes); err != nil {
				log.Printf("Failed to publish file update for %s: %v", fileId, err)
			}
			if err := s.Cache.SetFileSnapshot(context.Background(), fileId, msgBytes); err != nil {
				log.Printf("Failed to cache snapshot for %s: %v", fileId, err)
			}
		}
	}()

	return nil
}

// CachedSnapshot returns the most recently saved canvas content for a file
// if it is still in the cache. The cache entry is written right after the
// store on every save, so on a hit it is at least as fresh as a store read.
// Callers must have checked read access already.
func (s *Service) CachedSnapshot(ctx context.Context, fileId string) (models.CanvasContent, bool) {
	raw, err := s.Cache.GetFileSnapshot(ctx, fileId)
	if err != nil || len(raw) == 0 {
		return models.CanvasContent{}, false
	}

	var msg FileUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Data.Content.IsZero() {
		return models.CanvasContent{}, false
	}

	return msg.Data.Content, true
}

// Presence-only operation types need read access; everything else mutates
// the canvas and needs edit.
func requiredPermissionForOp(opType models.OperationType) models.Permission {
	switch opType {
	case models.OpCursorMove, models.OpUserJoin, models.OpUserLeave:
		return models.PermissionRead
	default:
		return models.PermissionEdit
	}
}

// RecordOperation appends a row to the file's activity log and fans it out
// to subscribers. The log doubles as the presence signal, so the retention
// janitor is nudged on every append.
func (s *Service) RecordOperation(ctx context.Context, fileId string, userId string, opType models.OperationType, data map[string]any) (models.Operation, error) {
	if _, err := s.getFileChecked(ctx, fileId, userId, requiredPermissionForOp(opType)); err != nil {
		return models.Operation{}, err
	}

	op, err := s.Store.AppendOperation(ctx, models.Operation{
		FileId:        fileId,
		UserId:        userId,
		OperationType: opType,
		Data:          data,
	})
	if err != nil {
		return models.Operation{}, err
	}

	if s.Janitor != nil {
		s.Janitor.Touch(fileId)
	}

	go func() {
		msg := OperationMessage{Type: "op", Data: op}
		if msgBytes, err := json.Marshal(msg); err == nil {
			if err := s.Cache.Publish(context.Background(), FileChannel(fileId), msgBytes); err != nil {
				log.Printf("Failed to publish op for %s: %v", fileId, err)
			}
		}
	}()

	return op, nil
}

func (s *Service) ListRecentOperations(ctx context.Context, fileId string, userId string, since time.Time, limit int32) ([]models.Operation, error) {
	if _, err := s.getFileChecked(ctx, fileId, userId, models.PermissionRead); err != nil {
		return nil, err
	}

	return s.Store.ListOperationsSince(ctx, fileId, since, limit)
}

// AddCollaborator grants (or changes) a user's permission on a file. Owner
// only. Unlike share-link joins this is a direct grant and may downgrade.
func (s *Service) AddCollaborator(ctx context.Context, fileId string, userId string, collaboratorId string, permission models.Permission) error {
	if permission != models.PermissionRead && permission != models.PermissionEdit {
		return ErrInvalidPermission
	}

	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}
	if collaboratorId == file.OwnerId {
		return ErrInvalidPermission // owner already holds edit
	}

	if _, err := s.Store.GetUser(ctx, collaboratorId); err != nil {
		return err
	}

	collabs := make([]models.Collaborator, 0, len(file.Collaborators)+1)
	for _, c := range file.Collaborators {
		if c.UserId == collaboratorId {
			continue
		}
		collabs = append(collabs, c)
	}
	collabs = append(collabs, models.Collaborator{UserId: collaboratorId, Permission: permission})

	return s.Store.SetCollaborators(ctx, fileId, collabs)
}

func (s *Service) RemoveCollaborator(ctx context.Context, fileId string, userId string, collaboratorId string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	// Owners remove anyone; collaborators may remove themselves (leave)
	if file.OwnerId != userId && collaboratorId != userId {
		return ErrPermissionDenied
	}

	collabs := make([]models.Collaborator, 0, len(file.Collaborators))
	for _, c := range file.Collaborators {
		if c.UserId == collaboratorId {
			continue
		}
		collabs = append(collabs, c)
	}

	return s.Store.SetCollaborators(ctx, fileId, collabs)
}

const (
	presenceWindow  = 5 * time.Minute
	presenceOpLimit = 50
)

// OnlineCollaborators approximates who is currently in the file: the owner
// and collaborators whose operations appear in the trailing window. There is
// no heartbeat protocol, the activity log stands in for one, so the result
// lags reality by up to a poll interval. The caller is always included since
// asking proves they are here.
//
// Results are cached in Redis; a hit answers the poll without touching the
// operation log. A cached list is never empty (the poller that wrote it is
// in it), so an empty read means miss.
func (s *Service) OnlineCollaborators(ctx context.Context, fileId string, userId string) ([]string, error) {
	file, err := s.getFileChecked(ctx, fileId, userId, models.PermissionRead)
	if err != nil {
		return nil, err
	}

	if cached, err := s.Cache.GetOnlineUsers(ctx, fileId); err == nil && len(cached) > 0 {
		for _, id := range cached {
			if id == userId {
				return cached, nil
			}
		}
		cached = append(cached, userId)
		sort.Strings(cached)
		return cached, nil
	}

	candidates := map[string]bool{file.OwnerId: false}
	for _, c := range file.Collaborators {
		candidates[c.UserId] = false
	}

	ops, err := s.Store.ListOperationsSince(ctx, fileId, time.Now().Add(-presenceWindow), presenceOpLimit)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if _, ok := candidates[op.UserId]; ok {
			candidates[op.UserId] = true
		}
	}
	candidates[userId] = true

	online := make([]string, 0, len(candidates))
	for id, active := range candidates {
		if active {
			online = append(online, id)
		}
	}
	sort.Strings(online)

	if err := s.Cache.SetOnlineUsers(ctx, fileId, online); err != nil {
		log.Printf("Failed to cache presence for %s: %v", fileId, err)
	}

	return online, nil
}
