package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/copaint/copaint/collab"
	"github.com/copaint/copaint/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Canvas snapshots are the
	// largest payload, so this is generous.
	maxMessageSize = 1024 * 256

	// Rate limiting: 20 messages per second with a burst of 30
	messagesPerSecond = 20
	burstLimit        = 30
)

type MessageHandler func(client *Client, messageType int, messageBytes []byte)

type fileSession struct {
	session *collab.Session
	cancel  context.CancelFunc
}

func NewClient(hub *Hub, conn *websocket.Conn, user models.User, handler MessageHandler) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:             hub,
		conn:            conn,
		user:            user,
		handler:         handler,
		subscribedFiles: make(map[string]struct{}),
		sessions:        make(map[string]fileSession),
		Send:            make(chan []byte, 128),
		ctx:             ctx,
		cancel:          cancel,
		limiter:         rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// Client is a middleman between the websocket connection and the hub. Each
// open file gets its own collab session; the hub's Redis callbacks route
// remote messages through DeliverRemote so the session's gate decides what
// actually reaches the wire.
type Client struct {
	hub             *Hub
	conn            *websocket.Conn
	user            models.User
	handler         MessageHandler
	subscribedFiles map[string]struct{} // owned by the hub goroutine

	mu       sync.RWMutex
	sessions map[string]fileSession

	Send    chan []byte // Buffered channel of outbound messages.
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
}

var (
	errFileAlreadyOpen  = errors.New("file already open")
	errTooManyOpenFiles = errors.New("too many open files")
)

// OpenSession registers a session for a file. The per-connection cap is
// enforced here, before the session starts or the hub hears about it, so a
// rejected open never half-exists.
func (c *Client) OpenSession(fileId string, session *collab.Session, cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[fileId]; ok {
		return errFileAlreadyOpen
	}
	if len(c.sessions) >= maxFilesPerConnection {
		return errTooManyOpenFiles
	}
	c.sessions[fileId] = fileSession{session: session, cancel: cancel}
	return nil
}

func (c *Client) CloseSession(fileId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	fs, ok := c.sessions[fileId]
	if !ok {
		return false
	}
	fs.cancel()
	delete(c.sessions, fileId)
	return true
}

func (c *Client) Session(fileId string) (*collab.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fs, ok := c.sessions[fileId]
	return fs.session, ok
}

// DeliverRemote routes a pub/sub message to the file's session, which
// forwards it to Send only if the propagation gate allows.
func (c *Client) DeliverRemote(fileId string, message []byte) {
	if session, ok := c.Session(fileId); ok {
		session.DeliverRemote(message)
	}
}

// SendMessage is the outbound path sessions use. Drops when the write pump
// is backed up so a slow consumer cannot stall a session loop.
func (c *Client) SendMessage(message []byte) error {
	select {
	case c.Send <- message:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		log.Printf("Dropping message to user %s: send buffer full", c.user.Uid)
		return nil
	}
}

func (c *Client) closeAllSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fileId, fs := range c.sessions {
		fs.cancel()
		delete(c.sessions, fileId)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.closeAllSessions()
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS close error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Printf("Closing connection for user %s: message rate limit exceeded", c.user.Uid)
			break
		}

		c.handler(c, messageType, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.cancel()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WS send error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
