package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/service"
	"github.com/copaint/copaint/store"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}

// authedUser resolves the bearer token; on failure the 401 is already
// written and ok is false.
func (h *Handler) authedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, err := h.Service.AuthenticateToken(r.Context(), h.getTokenFromAuthHeader(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return models.User{}, false
	}
	return user, true
}

// writeServiceError maps the service error taxonomy onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrItemNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, service.ErrPermissionDenied):
		http.Error(w, "permission denied", http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidShareCode):
		http.Error(w, "invalid share code", http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidSharePassword):
		http.Error(w, "invalid share password", http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidPermission):
		http.Error(w, "invalid permission level", http.StatusBadRequest)
	case errors.Is(err, service.ErrRequestResolved):
		http.Error(w, "request already resolved", http.StatusConflict)
	case errors.Is(err, service.ErrFileRecycled):
		http.Error(w, "file is in the recycle bin", http.StatusConflict)
	default:
		log.Printf("Internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// fileResponse is the wire shape of a file. Share secrets only appear for
// the owner.
type fileResponse struct {
	Id                string                `json:"id"`
	FileName          string                `json:"fileName"`
	OwnerId           string                `json:"ownerId"`
	Collaborators     []models.Collaborator `json:"collaborators"`
	Content           *models.CanvasContent `json:"content,omitempty"`
	CreateTime        int64                 `json:"createTime"`
	LastEditTime      int64                 `json:"lastEditTime"`
	Recycled          bool                  `json:"recycled"`
	RecycleTime       int64                 `json:"recycleTime,omitempty"`
	Permission        models.Permission     `json:"permission"`
	ShareEnabled      bool                  `json:"shareEnabled"`
	PasswordProtected bool                  `json:"passwordProtected"`
	ShareCode         string                `json:"shareCode,omitempty"`
	SharePermission   models.Permission     `json:"sharePermission,omitempty"`
}

func toFileResponse(file models.File, userId string, includeContent bool) fileResponse {
	resp := fileResponse{
		Id:                file.Id,
		FileName:          file.FileName,
		OwnerId:           file.OwnerId,
		Collaborators:     file.Collaborators,
		CreateTime:        file.CreateTime,
		LastEditTime:      file.LastEditTime,
		Recycled:          file.RecycleTag,
		RecycleTime:       file.RecycleTime,
		Permission:        service.FileAccess(file, userId),
		ShareEnabled:      file.ShareLink != "",
		PasswordProtected: file.EnablePassword,
	}
	if includeContent {
		content := file.Content
		resp.Content = &content
	}
	if file.OwnerId == userId {
		resp.ShareCode = file.ShareLink
		resp.SharePermission = file.SharePermission
	}
	return resp
}

// --- auth and profile ---

type loginRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

type userResponse struct {
	Uid       string               `json:"uid"`
	Email     string               `json:"email"`
	Nickname  string               `json:"nickname"`
	Provider  string               `json:"provider"`
	Favorites []string             `json:"favorites"`
	Recents   []string             `json:"recents"`
	Messages  []models.UserMessage `json:"messages"`
	Theme     string               `json:"theme"`
	Token     string               `json:"token,omitempty"`
}

func toUserResponse(user models.User, token string) userResponse {
	return userResponse{
		Uid:       user.Uid,
		Email:     user.Email,
		Nickname:  user.Nickname,
		Provider:  user.Provider,
		Favorites: user.Favorites,
		Recents:   user.Recents,
		Messages:  user.Messages,
		Theme:     user.Theme,
		Token:     token,
	}
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := h.Service.Login(r.Context(), req.Provider, req.Code)
	if err != nil {
		log.Printf("Login failed: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	h.sendResponse(w, toUserResponse(user, token))
}

func (h *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	h.sendResponse(w, toUserResponse(user, ""))
}

type updateMeRequest struct {
	Nickname string `json:"nickname"`
	Theme    string `json:"theme"`
}

func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateProfile(r.Context(), user, req.Nickname, req.Theme); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteUser(r.Context(), user); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	favorites, err := h.Service.ToggleFavorite(r.Context(), user, r.PathValue("fileId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true, "favorites": favorites})
}

// --- file lifecycle ---

func (h *Handler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	recycled := r.URL.Query().Get("recycled") == "true"
	var files []models.File
	var err error
	if recycled {
		files, err = h.Service.ListRecycledFiles(r.Context(), user.Uid)
	} else {
		files, err = h.Service.ListFiles(r.Context(), user.Uid)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]fileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, toFileResponse(f, user.Uid, false))
	}
	h.sendResponse(w, resp)
}

type createFileRequest struct {
	FileName string                `json:"fileName"`
	Content  *models.CanvasContent `json:"content"`
}

func (h *Handler) HandleCreateFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var content models.CanvasContent
	if req.Content != nil {
		content = *req.Content
	}

	file, err := h.Service.CreateFile(r.Context(), user.Uid, req.FileName, content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, toFileResponse(file, user.Uid, true))
}

func (h *Handler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	file, err := h.Service.GetFile(r.Context(), r.PathValue("fileId"), user.Uid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, toFileResponse(file, user.Uid, true))
}

type renameFileRequest struct {
	FileName string `json:"fileName"`
}

func (h *Handler) HandleRenameFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req renameFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.RenameFile(r.Context(), r.PathValue("fileId"), user.Uid, req.FileName); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.PermanentlyDeleteFile(r.Context(), r.PathValue("fileId"), user.Uid); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleRecycleFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.RecycleFile(r.Context(), r.PathValue("fileId"), user.Uid); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleRestoreFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.RestoreFile(r.Context(), r.PathValue("fileId"), user.Uid); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleCopyFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	file, err := h.Service.CopyFile(r.Context(), r.PathValue("fileId"), user.Uid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, toFileResponse(file, user.Uid, true))
}

type transferRequest struct {
	NewOwnerId string `json:"newOwnerId"`
}

func (h *Handler) HandleTransferFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.TransferOwnership(r.Context(), r.PathValue("fileId"), user.Uid, req.NewOwnerId); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

type updateContentRequest struct {
	Content models.CanvasContent `json:"content"`
}

// HandleUpdateContent is the REST save path; realtime clients save through
// their websocket session instead. Same server-side permission check either
// way.
func (h *Handler) HandleUpdateContent(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req updateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateFileContent(r.Context(), r.PathValue("fileId"), user.Uid, req.Content); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

// --- sharing and permissions ---

type shareRequest struct {
	Permission     models.Permission `json:"permission"`
	EnablePassword bool              `json:"enablePassword"`
	Password       string            `json:"password"`
}

func (h *Handler) HandleShareFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	link, err := h.Service.GenerateShareLink(r.Context(), r.PathValue("fileId"), user.Uid, req.Permission, req.EnablePassword, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, link)
}

type sharePasswordRequest struct {
	EnablePassword bool   `json:"enablePassword"`
	Password       string `json:"password"`
}

func (h *Handler) HandleSetSharePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req sharePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.SetSharePassword(r.Context(), r.PathValue("fileId"), user.Uid, req.EnablePassword, req.Password); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleRevokeShare(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.RevokeShareLink(r.Context(), r.PathValue("fileId"), user.Uid); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

type joinRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (h *Handler) HandleJoinFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	permission, err := h.Service.JoinByShareLink(r.Context(), r.PathValue("fileId"), user.Uid, req.Code, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true, "permission": permission})
}

type permissionRequestBody struct {
	Permission models.Permission `json:"permission"`
	Message    string            `json:"message"`
}

func (h *Handler) HandleCreatePermissionRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req permissionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.Service.RequestPermission(r.Context(), r.PathValue("fileId"), user.Uid, req.Permission, req.Message)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, created)
}

func (h *Handler) HandleListPermissionRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	reqs, err := h.Service.ListPermissionRequests(r.Context(), r.PathValue("fileId"), user.Uid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, reqs)
}

type resolveRequestBody struct {
	Approve bool `json:"approve"`
}

func (h *Handler) HandleResolvePermissionRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req resolveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.Service.ResolvePermissionRequest(r.Context(), r.PathValue("fileId"), user.Uid, r.PathValue("requestId"), req.Approve)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

// --- collaborators and presence ---

type collaboratorRequest struct {
	UserId     string            `json:"userId"`
	Permission models.Permission `json:"permission"`
}

func (h *Handler) HandleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req collaboratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.AddCollaborator(r.Context(), r.PathValue("fileId"), user.Uid, req.UserId, req.Permission); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	if err := h.Service.RemoveCollaborator(r.Context(), r.PathValue("fileId"), user.Uid, r.PathValue("userId")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"success": true})
}

func (h *Handler) HandleOnlineCollaborators(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	users, err := h.Service.OnlineCollaborators(r.Context(), r.PathValue("fileId"), user.Uid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.sendResponse(w, map[string]any{"users": users})
}
