package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"

	"github.com/gofrs/uuid/v5"

	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/store"
)

type ShareLink struct {
	FileId     string            `json:"fileId"`
	Code       string            `json:"code"`
	URL        string            `json:"url"`
	Permission models.Permission `json:"permission"`
	Password   bool              `json:"password"`
}

// GenerateShareLink creates (or replaces) the file's share link. Only the
// owner can share, and the granted level must be read or edit; a share link
// that grants none would be a link to nothing.
func (s *Service) GenerateShareLink(ctx context.Context, fileId string, userId string, permission models.Permission, enablePassword bool, password string) (ShareLink, error) {
	if permission != models.PermissionRead && permission != models.PermissionEdit {
		return ShareLink{}, ErrInvalidPermission
	}
	if enablePassword && password == "" {
		return ShareLink{}, errors.New("share password must not be empty")
	}

	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return ShareLink{}, err
	}
	if file.OwnerId != userId {
		return ShareLink{}, ErrPermissionDenied
	}

	codeUUID, err := uuid.NewV4()
	if err != nil {
		return ShareLink{}, err
	}
	code := codeUUID.String()

	if !enablePassword {
		password = ""
	}
	if err := s.Store.SetShareSettings(ctx, fileId, code, enablePassword, password, permission); err != nil {
		return ShareLink{}, err
	}

	return ShareLink{
		FileId:     fileId,
		Code:       code,
		URL:        fmt.Sprintf("%s/canvas/%s?share=%s", s.AppOrigin, fileId, code),
		Permission: permission,
		Password:   enablePassword,
	}, nil
}

// RevokeShareLink clears the file's share settings. Collaborators who
// already joined keep their granted permission.
func (s *Service) RevokeShareLink(ctx context.Context, fileId string, userId string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}

	return s.Store.SetShareSettings(ctx, fileId, "", false, "", models.PermissionNone)
}

// SetSharePassword turns password protection on or off for an existing
// share link without rotating the code or changing the granted level.
func (s *Service) SetSharePassword(ctx context.Context, fileId string, userId string, enable bool, password string) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}
	if file.ShareLink == "" {
		return ErrInvalidShareCode
	}
	if enable && password == "" {
		return errors.New("share password must not be empty")
	}
	if !enable {
		password = ""
	}

	return s.Store.SetShareSettings(ctx, fileId, file.ShareLink, enable, password, file.SharePermission)
}

// JoinByShareLink redeems a share code and records the caller as a
// collaborator. Grants are upgrade-only: a user who already holds edit does
// not get downgraded by redeeming a read link. Returns the user's effective
// permission after joining.
func (s *Service) JoinByShareLink(ctx context.Context, fileId string, userId string, code string, password string) (models.Permission, error) {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return models.PermissionNone, err
	}

	if file.ShareLink == "" || code == "" || code != file.ShareLink {
		return models.PermissionNone, ErrInvalidShareCode
	}
	if file.EnablePassword {
		if subtle.ConstantTimeCompare([]byte(password), []byte(file.SharePassword)) != 1 {
			return models.PermissionNone, ErrInvalidSharePassword
		}
	}

	current := FileAccess(file, userId)
	if current.Rank() >= file.SharePermission.Rank() {
		return current, nil // already at or above the shared level
	}

	collabs := make([]models.Collaborator, 0, len(file.Collaborators)+1)
	for _, c := range file.Collaborators {
		if c.UserId == userId {
			continue
		}
		collabs = append(collabs, c)
	}
	collabs = append(collabs, models.Collaborator{UserId: userId, Permission: file.SharePermission})

	if err := s.Store.SetCollaborators(ctx, fileId, collabs); err != nil {
		return models.PermissionNone, err
	}

	return file.SharePermission, nil
}

// RequestPermission files a pending request for a higher access level.
func (s *Service) RequestPermission(ctx context.Context, fileId string, requesterId string, permission models.Permission, message string) (models.PermissionRequest, error) {
	if permission != models.PermissionRead && permission != models.PermissionEdit {
		return models.PermissionRequest{}, ErrInvalidPermission
	}

	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return models.PermissionRequest{}, err
	}
	if file.OwnerId == requesterId {
		return models.PermissionRequest{}, errors.New("owner cannot request permission on their own file")
	}
	if FileAccess(file, requesterId).Rank() >= permission.Rank() {
		return models.PermissionRequest{}, errors.New("requested permission already granted")
	}

	req, err := s.Store.CreatePermissionRequest(ctx, models.PermissionRequest{
		FileId:              fileId,
		RequesterId:         requesterId,
		RequestedPermission: permission,
		Message:             message,
	})
	if err != nil {
		return models.PermissionRequest{}, err
	}

	// Notify the owner; the request itself stands even if this fails
	go func() {
		err := s.NotifyUser(context.Background(), file.OwnerId, models.UserMessage{
			Type:    "permission_request",
			FileId:  fileId,
			FromUid: requesterId,
			Text:    message,
		})
		if err != nil {
			log.Printf("Failed to notify owner %s of permission request: %v", file.OwnerId, err)
		}
	}()

	return req, nil
}

// ListPermissionRequests returns all requests for a file, owner only.
func (s *Service) ListPermissionRequests(ctx context.Context, fileId string, userId string) ([]models.PermissionRequest, error) {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return nil, err
	}
	if file.OwnerId != userId {
		return nil, ErrPermissionDenied
	}

	return s.Store.ListPermissionRequests(ctx, fileId)
}

// ResolvePermissionRequest approves or rejects a pending request. The store
// write is conditional on the request still being pending, so two owners (or
// two tabs) racing to resolve the same request cannot both win; the loser
// gets ErrRequestResolved. On approval the grant is applied upgrade-only.
func (s *Service) ResolvePermissionRequest(ctx context.Context, fileId string, userId string, requestId string, approve bool) error {
	file, err := s.Store.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	if file.OwnerId != userId {
		return ErrPermissionDenied
	}

	reqs, err := s.Store.ListPermissionRequests(ctx, fileId)
	if err != nil {
		return err
	}

	var req models.PermissionRequest
	found := false
	for _, r := range reqs {
		if r.Id == requestId {
			req = r
			found = true
			break
		}
	}
	if !found {
		return store.ErrItemNotFound
	}
	if req.Status != models.RequestPending {
		return ErrRequestResolved
	}

	status := models.RequestRejected
	if approve {
		status = models.RequestApproved
	}

	if err := s.Store.ResolvePermissionRequest(ctx, fileId, requestId, status, userId); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return ErrRequestResolved
		}
		return err
	}

	if !approve {
		return nil
	}

	// Apply the grant, never downgrading an existing collaborator
	if FileAccess(file, req.RequesterId).Rank() >= req.RequestedPermission.Rank() {
		return nil
	}

	collabs := make([]models.Collaborator, 0, len(file.Collaborators)+1)
	for _, c := range file.Collaborators {
		if c.UserId == req.RequesterId {
			continue
		}
		collabs = append(collabs, c)
	}
	collabs = append(collabs, models.Collaborator{UserId: req.RequesterId, Permission: req.RequestedPermission})

	return s.Store.SetCollaborators(ctx, fileId, collabs)
}
