package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/copaint/copaint/collab"
	"github.com/copaint/copaint/models"
	"github.com/copaint/copaint/service"
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == requiredOrigin
		},
		Subprotocols: []string{"copaint-v1"},
	}
}

// ServeWS handles websocket requests from the peer. The JWT travels in the
// second subprotocol slot since browsers cannot set headers on websockets.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	user, authErr := h.Service.AuthenticateToken(r.Context(), token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade ws connection: %v", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, user, h.HandleWsMessage)

	h.Hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type openMessage struct {
	FileId        string `json:"fileId"`
	ShareCode     string `json:"shareCode"`
	SharePassword string `json:"sharePassword"`
}

type closeMessage struct {
	FileId string `json:"fileId"`
}

type editMessage struct {
	FileId  string               `json:"fileId"`
	Content models.CanvasContent `json:"content"`
}

type opMessage struct {
	FileId        string               `json:"fileId"`
	OperationType models.OperationType `json:"operationType"`
	Data          map[string]any       `json:"data"`
}

type responseMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("Invalid JSON: %v", err)
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "open":
		var openMsg openMessage
		if err := json.Unmarshal(msg.Data, &openMsg); err != nil {
			log.Printf("Invalid open data: %v", err)
			return
		}
		resp = h.handleOpen(client, openMsg)

	case "close":
		var closeMsg closeMessage
		if err := json.Unmarshal(msg.Data, &closeMsg); err != nil {
			log.Printf("Invalid close data: %v", err)
			return
		}
		resp = h.handleClose(client, closeMsg)

	case "edit":
		var editMsg editMessage
		if err := json.Unmarshal(msg.Data, &editMsg); err != nil {
			log.Printf("Invalid edit data: %v", err)
			return
		}
		resp = h.handleEdit(client, editMsg)

	case "op":
		var oMsg opMessage
		if err := json.Unmarshal(msg.Data, &oMsg); err != nil {
			log.Printf("Invalid op data: %v", err)
			return
		}
		resp = h.handleOp(client, oMsg)

	default:
		log.Printf("Unknown message type: %v", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Error marshaling response JSON: %v", err)
			return
		}
		client.SendMessage(respBytes)
	}
}

func (h *Handler) handleOpen(client *Client, openMsg openMessage) responseMessage {
	resp := responseMessage{
		Type: "open_response",
	}

	ctx := context.Background()

	// Redeeming a share link happens before the access check so a first
	// visit through a link lands directly in the file
	if openMsg.ShareCode != "" {
		if _, err := h.Service.JoinByShareLink(ctx, openMsg.FileId, client.user.Uid, openMsg.ShareCode, openMsg.SharePassword); err != nil {
			log.Printf("Share join failed for file %s: %v", openMsg.FileId, err)
			resp.Data = map[string]any{"success": false, "fileId": openMsg.FileId, "error": err.Error()}
			return resp
		}
	}

	file, err := h.Service.GetFile(ctx, openMsg.FileId, client.user.Uid)
	if err != nil {
		log.Printf("Open failed for file %s: %v", openMsg.FileId, err)
		resp.Data = map[string]any{"success": false, "fileId": openMsg.FileId, "error": "file not accessible"}
		return resp
	}

	sessionCtx, cancel := context.WithCancel(client.ctx)
	session := collab.NewSession(file.Id, client.user.Uid, h.Service, client.SendMessage)

	if err := client.OpenSession(file.Id, session, cancel); err != nil {
		cancel()
		resp.Data = map[string]any{"success": false, "fileId": file.Id, "error": err.Error()}
		return resp
	}

	go session.Run(sessionCtx)
	h.Hub.SubscribeCh <- subscription{client: client, fileId: file.Id}

	if err := h.Service.TouchRecent(ctx, client.user, file.Id); err != nil {
		log.Printf("Failed to touch recents for user %s: %v", client.user.Uid, err)
	}

	// A cached snapshot beats the store read: it was written after the last
	// save and another instance may have saved since our GetFile
	content := file.Content
	if cached, ok := h.Service.CachedSnapshot(ctx, file.Id); ok {
		content = cached
	}

	resp.Data = map[string]any{
		"success":       true,
		"fileId":        file.Id,
		"fileName":      file.FileName,
		"ownerId":       file.OwnerId,
		"collaborators": file.Collaborators,
		"permission":    service.FileAccess(file, client.user.Uid),
		"content":       content,
	}
	return resp
}

func (h *Handler) handleClose(client *Client, closeMsg closeMessage) responseMessage {
	resp := responseMessage{
		Type: "close_response",
	}

	if !client.CloseSession(closeMsg.FileId) {
		resp.Data = map[string]any{"success": false, "fileId": closeMsg.FileId, "error": "file not open"}
		return resp
	}

	h.Hub.UnsubscribeCh <- subscription{client: client, fileId: closeMsg.FileId}
	resp.Data = map[string]any{"success": true, "fileId": closeMsg.FileId}
	return resp
}

// handleEdit feeds the snapshot into the session; persistence is debounced
// there, so there is no per-edit response. Save failures arrive as error
// messages from the session itself.
func (h *Handler) handleEdit(client *Client, editMsg editMessage) responseMessage {
	session, ok := client.Session(editMsg.FileId)
	if !ok {
		return responseMessage{
			Type: "edit_response",
			Data: map[string]any{"success": false, "fileId": editMsg.FileId, "error": "file not open"},
		}
	}

	session.SubmitEdit(editMsg.Content)
	return responseMessage{}
}

func (h *Handler) handleOp(client *Client, oMsg opMessage) responseMessage {
	resp := responseMessage{
		Type: "op_response",
	}

	if _, ok := client.Session(oMsg.FileId); !ok {
		resp.Data = map[string]any{"success": false, "fileId": oMsg.FileId, "error": "file not open"}
		return resp
	}

	op, err := h.Service.RecordOperation(context.Background(), oMsg.FileId, client.user.Uid, oMsg.OperationType, oMsg.Data)
	if err != nil {
		log.Printf("RecordOperation failed: %v", err)
		resp.Data = map[string]any{"success": false, "fileId": oMsg.FileId, "error": err.Error()}
		return resp
	}

	resp.Data = map[string]any{"success": true, "fileId": oMsg.FileId, "opId": op.Id}
	return resp
}
