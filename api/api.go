package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/copaint/copaint/api/rest"
	"github.com/copaint/copaint/api/ws"
	"github.com/copaint/copaint/cache"
	"github.com/copaint/copaint/mq"
	"github.com/copaint/copaint/service"
	"github.com/copaint/copaint/store"
	"github.com/copaint/copaint/worker"
)

const janitorSweepInterval = 10 * time.Minute

type CoPaintAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	wsUpgrader  websocket.Upgrader
	shutdownCtx context.Context
}

func NewCoPaintAPI(
	copaintStore store.CoPaintStore,
	purgeQueue mq.MessageQueue,
	copaintCache cache.CoPaintCache,
	oauthConfigs map[string]*oauth2.Config,
	jwtSecret []byte,
	appOrigin string,
	shutdownCtx context.Context,
) (*CoPaintAPI, error) {
	wsHub := ws.NewHub(copaintCache)
	err := wsHub.InitSubscriptions(shutdownCtx)
	if err != nil {
		log.Printf("Failed to start WS Hub subscriptions service: %v", err)
		return &CoPaintAPI{}, err
	}
	go wsHub.Run()

	janitor := worker.NewJanitor(copaintStore, janitorSweepInterval)
	go janitor.Run(shutdownCtx)

	purgeConsumer := worker.NewPurgeConsumer(purgeQueue, copaintStore, copaintCache)
	go purgeConsumer.Run(shutdownCtx)

	svc, err := service.NewService(
		copaintStore,
		copaintCache,
		purgeQueue,
		janitor,
		oauthConfigs,
		jwtSecret,
		appOrigin,
	)
	if err != nil {
		log.Printf("Failed to create service: %v", err)
		return &CoPaintAPI{}, err
	}

	restHandler := rest.NewHandler(svc)
	wsHandler := ws.NewHandler(svc, wsHub)

	return &CoPaintAPI{
		restHandler: restHandler,
		wsHandler:   wsHandler,
		shutdownCtx: shutdownCtx,
	}, nil
}

func (copaintAPI *CoPaintAPI) RegisterRoutes(mux *http.ServeMux, requiredOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	h := copaintAPI.restHandler

	mux.HandleFunc("POST /login", h.HandleLogin)

	mux.HandleFunc("GET /me", h.HandleGetMe)
	mux.HandleFunc("PATCH /me", h.HandleUpdateMe)
	mux.HandleFunc("DELETE /me", h.HandleDeleteMe)
	mux.HandleFunc("POST /me/favorites/{fileId}", h.HandleToggleFavorite)

	mux.HandleFunc("GET /files", h.HandleListFiles)
	mux.HandleFunc("POST /files", h.HandleCreateFile)
	mux.HandleFunc("GET /files/{fileId}", h.HandleGetFile)
	mux.HandleFunc("PATCH /files/{fileId}", h.HandleRenameFile)
	mux.HandleFunc("DELETE /files/{fileId}", h.HandleDeleteFile)
	mux.HandleFunc("POST /files/{fileId}/recycle", h.HandleRecycleFile)
	mux.HandleFunc("POST /files/{fileId}/restore", h.HandleRestoreFile)
	mux.HandleFunc("POST /files/{fileId}/copy", h.HandleCopyFile)
	mux.HandleFunc("POST /files/{fileId}/transfer", h.HandleTransferFile)
	mux.HandleFunc("PUT /files/{fileId}/content", h.HandleUpdateContent)

	mux.HandleFunc("POST /files/{fileId}/share", h.HandleShareFile)
	mux.HandleFunc("PATCH /files/{fileId}/share", h.HandleSetSharePassword)
	mux.HandleFunc("DELETE /files/{fileId}/share", h.HandleRevokeShare)
	mux.HandleFunc("POST /files/{fileId}/join", h.HandleJoinFile)
	mux.HandleFunc("POST /files/{fileId}/requests", h.HandleCreatePermissionRequest)
	mux.HandleFunc("GET /files/{fileId}/requests", h.HandleListPermissionRequests)
	mux.HandleFunc("POST /files/{fileId}/requests/{requestId}", h.HandleResolvePermissionRequest)

	mux.HandleFunc("PUT /files/{fileId}/collaborators", h.HandleAddCollaborator)
	mux.HandleFunc("DELETE /files/{fileId}/collaborators/{userId}", h.HandleRemoveCollaborator)
	mux.HandleFunc("GET /files/{fileId}/online", h.HandleOnlineCollaborators)

	wsUpgrader := copaintAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		copaintAPI.wsHandler.ServeWS(wsUpgrader, w, r, copaintAPI.shutdownCtx)
	})
}
