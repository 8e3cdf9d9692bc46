package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/mq"
	"github.com/copaint/copaint/store"
)

// getFileChecked loads a file and verifies the caller holds the required
// permission on it. Callers that would leak file existence to strangers
// get ErrPermissionDenied rather than the file.
func (s *Service) getFileChecked(ctx context.Context, fileId string, userId string, required models.Permission) (models.File, error) {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return models.File{}, err
	}

	if !HasPermission(file, userId, required) {
		return models.File{}, ErrPermissionDenied
	}

	return file, nil
}

func (s *Service) CreateFile(ctx context.Context, ownerId string, fileName string, content models.CanvasContent) (models.File, error) {
	if err := ValidateFileName(fileName); err != nil {
		return models.File{}, err
	}

	file := models.File{
		FileName:        fileName,
		OwnerId:         ownerId,
		Collaborators:   []models.Collaborator{},
		Content:         content,
		SharePermission: models.PermissionNone,
	}

	return s.Store.CreateFile(ctx, file)
}

func (s *Service) GetFile(ctx context.Context, fileId string, userId string) (models.File, error) {
	return s.getFileChecked(ctx, fileId, userId, models.PermissionRead)
}

func (s *Service) ListFiles(ctx context.Context, ownerId string) ([]models.File, error) {
	return s.Store.ListFilesByOwner(ctx, ownerId, false)
}

func (s *Service) ListRecycledFiles(ctx context.Context, ownerId string) ([]models.File, error) {
	return s.Store.ListFilesByOwner(ctx, ownerId, true)
}

func (s *Service) RenameFile(ctx context.Context, fileId string, userId string, newName string) error {
	if err := ValidateFileName(newName); err != nil {
		return err
	}

	if _, err := s.getFileChecked(ctx, fileId, userId, models.PermissionEdit); err != nil {
		return err
	}

	return s.Store.RenameFile(ctx, fileId, newName)
}

// RecycleFile soft-deletes a file. Only the owner can recycle; collaborators
// with edit can change content but not the file's lifecycle.
func (s *Service) RecycleFile(ctx context.Context, fileId string, userId string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}

	return s.Store.SetRecycled(ctx, fileId, true)
}

func (s *Service) RestoreFile(ctx context.Context, fileId string, userId string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}

	return s.Store.SetRecycled(ctx, fileId, false)
}

// PermanentlyDeleteFile removes the file row and enqueues a purge job for
// its operation log and permission requests. The file does not have to be
// in the recycle bin first.
func (s *Service) PermanentlyDeleteFile(ctx context.Context, fileId string, userId string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}

	if err := s.Store.DeleteFile(ctx, fileId); err != nil {
		return err
	}

	// Async side-effects, caller does not wait on them
	go func() {
		job := mq.PurgeJob{FileId: fileId, DeletedBy: userId, DeletedAt: time.Now().UnixMilli()}
		if jobBytes, err := json.Marshal(job); err == nil {
			if err := s.MQ.Send(context.Background(), string(jobBytes)); err != nil {
				log.Printf("Failed to enqueue purge for file %s: %v", fileId, err)
			}
		}

		if err := s.Cache.InvalidateFiles(context.Background(), []string{fileId}); err != nil {
			log.Printf("Failed to invalidate cache for file %s: %v", fileId, err)
		}
	}()

	return nil
}

// CopyFile duplicates a file the caller can read into a fresh file owned by
// the caller. Collaborators and share settings do not carry over.
func (s *Service) CopyFile(ctx context.Context, fileId string, userId string) (models.File, error) {
	source, err := s.getFileChecked(ctx, fileId, userId, models.PermissionRead)
	if err != nil {
		return models.File{}, err
	}
	if source.RecycleTag {
		return models.File{}, ErrFileRecycled
	}

	return s.CreateFile(ctx, userId, source.FileName+"-copy", source.Content)
}

// TransferOwnership hands the file to another user. The previous owner is
// kept as an edit collaborator so the handover never locks them out, and the
// new owner is dropped from the collaborator list since ownership supersedes.
func (s *Service) TransferOwnership(ctx context.Context, fileId string, userId string, newOwnerId string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}
	if newOwnerId == userId {
		return nil // no-op
	}

	// The new owner must exist
	if _, err := s.Store.GetUser(ctx, newOwnerId); err != nil {
		return err
	}

	collabs := make([]models.Collaborator, 0, len(file.Collaborators)+1)
	for _, c := range file.Collaborators {
		if c.UserId == newOwnerId {
			continue
		}
		collabs = append(collabs, c)
	}
	collabs = append(collabs, models.Collaborator{UserId: userId, Permission: models.PermissionEdit})

	return s.Store.TransferOwner(ctx, fileId, newOwnerId, collabs)
}

// IsNotFound reports whether an error means the requested item does not
// exist in the store.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrItemNotFound)
}
