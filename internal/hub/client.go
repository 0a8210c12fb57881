package hub

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/event"
)

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound events
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound events
	kickOnFull         = true                   // when true, disconnect session when egress is full
	registerTimeout    = 5 * time.Second        // timeout for session registration
	unregisterTimeout  = 5 * time.Second        // timeout for session unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
)

// Client is one authenticated live session: a connection-scoped capability
// object holding the verified user identity and the set of joined rooms. It
// owns no durable state and dies with its connection.
type Client struct {
	ID      string
	userID  string
	conn    *websocket.Conn
	manager *Hub
	egress  chan event.WsEvent

	// rooms this session has joined; mirrored in the hub shards and used
	// for full cleanup on disconnect
	rooms   map[string]struct{}
	roomsMu sync.RWMutex

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool
	closedMu       sync.RWMutex
}

func newClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:         uuid.New().String(),
		userID:     userID,
		conn:       conn,
		manager:    h,
		egress:     make(chan event.WsEvent, sendBufSize),
		rooms:      make(map[string]struct{}),
		cancel:     cancel,
		ctx:        ctx,
		connClosed: make(chan struct{}),
	}
}

// RegisterClient creates a session for an already-authenticated connection
// and starts its read/write pumps.
func RegisterClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	client := newClient(userID, conn, h)

	select {
	case h.register <- client:
		go client.ReadMessages()
		go client.WriteMessages()
		h.logger.Info("session registered",
			zap.String("session_id", client.ID),
			zap.String("user_id", userID),
		)
		return client
	case <-time.After(registerTimeout):
		h.logger.Warn("session registration timed out", zap.String("user_id", userID))
		client.cancel()
		conn.Close()
		return nil
	}
}

// UserID returns the owning user of this session.
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) trackJoin(roomID string) {
	c.roomsMu.Lock()
	c.rooms[roomID] = struct{}{}
	c.roomsMu.Unlock()
}

func (c *Client) trackLeave(roomID string) {
	c.roomsMu.Lock()
	delete(c.rooms, roomID)
	c.roomsMu.Unlock()
}

// JoinedRooms snapshots the rooms this session currently belongs to.
func (c *Client) JoinedRooms() []string {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-time.After(unregisterTimeout):
			c.manager.logger.Warn("session unregistration timed out", zap.String("session_id", c.ID))
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev event.WsEvent

			if err := c.conn.ReadJSON(&ev); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					c.manager.logger.Debug("session disconnected", zap.String("session_id", c.ID))
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					c.manager.logger.Warn("unexpected close", zap.String("session_id", c.ID), zap.Error(err))
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.manager.logger.Debug("session timed out", zap.String("session_id", c.ID))
					return
				}

				c.manager.logger.Warn("read error", zap.String("session_id", c.ID), zap.Error(err))
				return
			}

			// Non-blocking hand-off so a slow worker pool never stalls the
			// reader.
			select {
			case c.manager.inbound <- inboundEvent{client: c, event: ev}:
			case <-time.After(inboundSendTimeout):
				c.manager.logger.Warn("inbound queue full, dropping session", zap.String("session_id", c.ID))
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Client) WriteMessages() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.egress:
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
					c.manager.logger.Debug("close frame write failed", zap.Error(err))
				}
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.manager.logger.Warn("write error", zap.String("session_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.manager.logger.Debug("ping failed", zap.String("session_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) pongHandler(string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

func (c *Client) Close() {
	c.once.Do(func() {
		// Mark as closed BEFORE closing the channel
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()
		close(c.egress)

		// Wait for WriteMessages to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(5 * time.Second):
				if c.conn != nil {
					_ = c.conn.Close()
				}
			}
		}()
	})
}

// IsClosed returns true if the session has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// SafeSend attempts to enqueue an event for this session.
// Returns true if enqueued, false if the session is closed or timed out.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	if c.IsClosed() {
		return false
	}

	select {
	case <-c.ctx.Done():
		return false
	case c.egress <- ev:
		return true
	case <-time.After(timeout):
		return false
	}
}
