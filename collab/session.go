// Package collab runs the per-connection synchronization engine. Each
// connected client gets one Session that debounces local saves, fans remote
// updates back to the client, and keeps a propagation gate so a client never
// has its own edit echoed back mid-stroke.
package collab

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/copaint/copaint/models"
)

// Gate is the propagation state of a session. Exactly one transition source
// exists (the Run goroutine), so reads inside the loop are race-free.
type Gate int

const (
	// GateIdle lets both directions through.
	GateIdle Gate = iota
	// GateSending holds while a local save is in flight and briefly after,
	// so remote snapshots cannot clobber the canvas the user is editing.
	GateSending
	// GateReceiving holds briefly after applying a remote snapshot, so the
	// client's reactive re-save of the applied content is not bounced back
	// to everyone as a fresh edit.
	GateReceiving
)

func (g Gate) String() string {
	switch g {
	case GateSending:
		return "sending"
	case GateReceiving:
		return "receiving"
	default:
		return "idle"
	}
}

// Backend is the slice of the service layer a session needs. Satisfied by
// *service.Service.
type Backend interface {
	UpdateFileContent(ctx context.Context, fileId string, userId string, content models.CanvasContent) error
	RecordOperation(ctx context.Context, fileId string, userId string, opType models.OperationType, data map[string]any) (models.Operation, error)
	OnlineCollaborators(ctx context.Context, fileId string, userId string) ([]string, error)
}

const (
	saveDebounce    = 500 * time.Millisecond
	sendCooldown    = 2500 * time.Millisecond
	receiveCooldown = 800 * time.Millisecond

	presenceInterval = 60 * time.Second
	seenOpTTL        = 5 * time.Minute

	opTimeout = 10 * time.Second
)

type Session struct {
	fileId  string
	userId  string
	backend Backend
	send    func(message []byte) error

	editCh   chan models.CanvasContent
	remoteCh chan []byte

	// Loop-owned state, only the Run goroutine touches these
	gate    Gate
	pending models.CanvasContent
	dirty   bool
	seenOps map[string]time.Time
}

func NewSession(fileId string, userId string, backend Backend, send func(message []byte) error) *Session {
	return &Session{
		fileId:   fileId,
		userId:   userId,
		backend:  backend,
		send:     send,
		editCh:   make(chan models.CanvasContent, 1),
		remoteCh: make(chan []byte, 64),
		seenOps:  make(map[string]time.Time),
	}
}

// SubmitEdit hands a local canvas snapshot to the session. Snapshots
// coalesce: when the loop has not picked up the previous one yet it is
// replaced, only the latest snapshot matters under last-writer-wins.
func (s *Session) SubmitEdit(content models.CanvasContent) {
	for {
		select {
		case s.editCh <- content:
			return
		default:
			select {
			case <-s.editCh:
			default:
			}
		}
	}
}

// DeliverRemote hands a raw pub/sub message to the session. Drops when the
// session is backed up; a dropped snapshot is superseded by the next one.
func (s *Session) DeliverRemote(message []byte) {
	select {
	case s.remoteCh <- message:
	default:
	}
}

// Wire envelope for messages on the file channel. Only the fields needed
// for gating are parsed here, the payload is forwarded untouched.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type updateOrigin struct {
	UserId string `json:"userId"`
}

type opIdentity struct {
	Id     string `json:"id"`
	UserId string `json:"userId"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Run drives the session until the context is cancelled. Joining and
// leaving are recorded in the file's activity log so other sessions'
// presence polls see this user.
func (s *Session) Run(ctx context.Context) {
	if _, err := s.backend.RecordOperation(ctx, s.fileId, s.userId, models.OpUserJoin, nil); err != nil {
		log.Printf("Session %s/%s: join record failed: %v", s.fileId, s.userId, err)
	}
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if _, err := s.backend.RecordOperation(leaveCtx, s.fileId, s.userId, models.OpUserLeave, nil); err != nil {
			log.Printf("Session %s/%s: leave record failed: %v", s.fileId, s.userId, err)
		}
	}()

	s.pushPresence(ctx)

	// nil channels disable their select case until armed
	var debounceC <-chan time.Time
	var gateC <-chan time.Time

	presenceTicker := time.NewTicker(presenceInterval)
	defer presenceTicker.Stop()
	pruneTicker := time.NewTicker(seenOpTTL)
	defer pruneTicker.Stop()

	for {
		select {
		case content := <-s.editCh:
			if s.gate == GateReceiving {
				// The client re-saves the snapshot it just applied;
				// persisting it would rebroadcast a remote edit as ours
				// and set off a feedback loop between sessions
				continue
			}
			s.pending = content
			s.dirty = true
			debounceC = time.After(saveDebounce)

		case <-debounceC:
			debounceC = nil
			switch s.gate {
			case GateReceiving:
				// A remote snapshot landed after this save was queued and
				// already overwrote the local canvas; the save is stale
				s.dirty = false
			case GateSending:
				// Cooldown still running; the gate timer flushes the
				// pending snapshot when it fires
			default:
				gateC = s.flush(ctx)
			}

		case <-gateC:
			gateC = nil
			s.gate = GateIdle
			if s.dirty && debounceC == nil {
				gateC = s.flush(ctx)
			}

		case message := <-s.remoteCh:
			gateC = s.handleRemote(message, gateC)

		case <-presenceTicker.C:
			s.pushPresence(ctx)

		case <-pruneTicker.C:
			cutoff := time.Now().Add(-seenOpTTL)
			for id, seen := range s.seenOps {
				if seen.Before(cutoff) {
					delete(s.seenOps, id)
				}
			}

		case <-ctx.Done():
			if s.dirty {
				s.flush(context.Background())
			}
			return
		}
	}
}

// flush persists the pending snapshot. On success the gate holds in the
// sending state for the cooldown; on failure it opens immediately so the
// session never wedges shut, and the client is told the save was lost.
func (s *Session) flush(ctx context.Context) <-chan time.Time {
	s.gate = GateSending
	s.dirty = false

	saveCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.backend.UpdateFileContent(saveCtx, s.fileId, s.userId, s.pending); err != nil {
		log.Printf("Session %s/%s: save failed: %v", s.fileId, s.userId, err)
		s.gate = GateIdle
		s.sendError("save failed: " + err.Error())
		return nil
	}

	return time.After(sendCooldown)
}

func (s *Session) handleRemote(message []byte, gateC <-chan time.Time) <-chan time.Time {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return gateC
	}

	switch env.Type {
	case "file_update":
		var origin updateOrigin
		if err := json.Unmarshal(env.Data, &origin); err != nil {
			return gateC
		}
		if origin.UserId == s.userId {
			return gateC // own edit echoed through pub/sub
		}
		if s.gate == GateSending {
			// A local save is in flight; under last-writer-wins our
			// snapshot supersedes this one, applying it would fight the
			// user's cursor
			return gateC
		}
		if err := s.send(message); err != nil {
			return gateC
		}
		s.gate = GateReceiving
		return time.After(receiveCooldown)

	case "op":
		var op opIdentity
		if err := json.Unmarshal(env.Data, &op); err != nil {
			return gateC
		}
		if op.UserId == s.userId {
			return gateC
		}
		if _, seen := s.seenOps[op.Id]; seen {
			return gateC
		}
		s.seenOps[op.Id] = time.Now()
		s.send(message)
		return gateC

	default:
		// Unknown types pass through so clients can evolve ahead of the server
		s.send(message)
		return gateC
	}
}

func (s *Session) pushPresence(ctx context.Context) {
	presCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	users, err := s.backend.OnlineCollaborators(presCtx, s.fileId, s.userId)
	if err != nil {
		log.Printf("Session %s/%s: presence poll failed: %v", s.fileId, s.userId, err)
		return
	}

	msg := struct {
		Type string `json:"type"`
		Data struct {
			FileId string   `json:"fileId"`
			Users  []string `json:"users"`
		} `json:"data"`
	}{Type: "presence"}
	msg.Data.FileId = s.fileId
	msg.Data.Users = users

	if msgBytes, err := json.Marshal(msg); err == nil {
		s.send(msgBytes)
	}
}

func (s *Session) sendError(text string) {
	msg := errorMessage{Type: "error", Error: text}
	if msgBytes, err := json.Marshal(msg); err == nil {
		s.send(msgBytes)
	}
}
