package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Client is one live websocket connection. All writes go through the send
// channel so a single goroutine owns the socket; gorilla/websocket does not
// allow concurrent writers.
type Client struct {
	ID         string
	remoteAddr string

	mu   sync.RWMutex
	sess domain.Session

	conn *websocket.Conn
	send chan outbound
	log  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, remoteAddr string, sess domain.Session, log zerolog.Logger) *Client {
	return &Client{
		ID:         uuid.NewString(),
		remoteAddr: remoteAddr,
		sess:       sess,
		conn:       conn,
		send:       make(chan outbound, sendBufferSize),
		log:        log,
		done:       make(chan struct{}),
	}
}

// Session returns the identity the client authenticated with. The room field
// tracks the client's current membership and is updated on join, so handlers
// running on shard workers must read it through here.
func (c *Client) Session() domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// SetRoom records the client's current room on its session copy.
func (c *Client) SetRoom(roomID string) {
	c.mu.Lock()
	c.sess.RoomID = roomID
	c.mu.Unlock()
}

// Send queues an event for delivery. A client that cannot drain its buffer is
// disconnected rather than allowed to stall the caller.
func (c *Client) Send(event string, payload any) {
	select {
	case c.send <- outbound{Event: event, Data: payload}:
	case <-c.done:
	default:
		c.log.Warn().
			Str("client_id", c.ID).
			Str("email", c.Session().Email).
			Msg("send buffer full, dropping client")
		c.Close()
	}
}

// Close tears the connection down. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writeLoop is the single writer for the socket. It exits when the client is
// closed.
func (c *Client) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			payload, err := json.Marshal(msg)
			if err != nil {
				c.log.Error().Err(err).Str("event", msg.Event).Msg("marshal outbound event")
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
