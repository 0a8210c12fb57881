package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/event"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/service"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundEvent struct {
	event  event.WsEvent
	client *Client
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client
}

// Hub is the Session Gateway and Delivery Broadcaster: it tracks which
// sessions belong to which rooms and fans persisted messages out to them.
type Hub struct {
	shards     [shardCount]*roomBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	sessions   map[string]*Client
	sessionsMu sync.RWMutex

	chat   service.ChatService
	logger *zap.Logger

	enqueued atomic.Int64
	dropped  atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(chat service.ChatService, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundEvent, 4096), // buffer for burst handling
		sessions:   make(map[string]*Client),
		chat:       chat,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// -----------------------------------------------------------------
// Event handling
// -----------------------------------------------------------------

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventJoin:
		h.joinRoom(c, ev.RoomID)
	case event.EventLeave:
		h.leaveRoom(c, ev.RoomID)
	case event.EventSend:
		h.handleSend(ev, c)
	case event.EventTyping:
		h.handleTyping(ev, c)
	default:
		h.logger.Warn("unknown event type",
			zap.String("event", ev.Event),
			zap.String("session_id", c.ID),
		)
		h.sendError(c, ev.RoomID, "unknown_event", "unrecognized event type")
	}
}

// handleSend persists through the chat service, which triggers the fan-out
// once the write is durable. Failures go back to the originating session
// only and never tear the connection down.
func (h *Hub) handleSend(ev event.WsEvent, c *Client) {
	if ev.RoomID == "" {
		h.sendError(c, "", "invalid_room", "roomId is required")
		return
	}

	var payload event.SendPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		h.sendError(c, ev.RoomID, "malformed_payload", "send payload could not be parsed")
		return
	}

	_, err := h.chat.Send(h.ctx, c.userID, ev.RoomID, service.SendInput{
		Body:        payload.Body,
		Type:        payload.Type,
		Attachments: payload.Attachments,
		RecipientID: payload.RecipientID,
		ReplyTo:     payload.ReplyTo,
	})
	if err != nil {
		h.logger.Debug("live send rejected",
			zap.String("session_id", c.ID),
			zap.String("room_id", ev.RoomID),
			zap.String("code", apperr.CodeOf(err)),
		)
		h.sendError(c, ev.RoomID, apperr.CodeOf(err), "message was not accepted")
		return
	}
}

func (h *Hub) handleTyping(ev event.WsEvent, c *Client) {
	if ev.RoomID == "" {
		return
	}

	var payload event.TypingPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return
	}
	payload.UserID = c.userID

	out, err := event.Envelope(event.EventTyping, ev.RoomID, payload)
	if err != nil {
		return
	}
	h.publishToRoom(out, ev.RoomID, c.ID)
}

func (h *Hub) sendError(c *Client, roomID, code, message string) {
	out, err := event.Envelope(event.EventError, roomID, event.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	c.SafeSend(out, sendTimeout)
}

// -----------------------------------------------------------------
// Broadcasting
// -----------------------------------------------------------------

// Broadcast implements service.Broadcaster: best-effort fan-out of a durably
// persisted message to every session in its room. Returns how many sessions
// other than the sender's had the event enqueued.
func (h *Hub) Broadcast(msg *model.Message) (int, error) {
	out, err := event.Envelope(event.EventNewMessage, msg.StoreID, msg)
	if err != nil {
		return 0, apperr.Broadcast("encode_failed", "message event could not be encoded").Wrap(err)
	}

	delivered := 0
	for _, c := range h.roomClients(msg.StoreID) {
		if !c.SafeSend(out, sendTimeout) {
			h.dropped.Add(1)
			h.logger.Warn("egress full, dropping broadcast",
				zap.String("session_id", c.ID),
				zap.String("room_id", msg.StoreID),
			)
			if kickOnFull {
				select {
				case h.unregister <- c:
				default:
				}
			}
			continue
		}

		h.enqueued.Add(1)
		if c.userID != msg.SenderID {
			delivered++
		}
	}

	return delivered, nil
}

// Delivered confirms the advisory delivered transition back to the sender's
// own sessions. Best effort like every live push.
func (h *Hub) Delivered(msg *model.Message) {
	deliveredAt := ""
	if msg.DeliveredAt != nil {
		deliveredAt = msg.DeliveredAt.Format(time.RFC3339Nano)
	}

	out, err := event.Envelope(event.EventDelivered, msg.StoreID, event.DeliveredPayload{
		MessageID:   msg.MessageID,
		DeliveredAt: deliveredAt,
	})
	if err != nil {
		return
	}

	for _, c := range h.roomClients(msg.StoreID) {
		if c.userID != msg.SenderID {
			continue
		}
		if c.SafeSend(out, sendTimeout) {
			h.enqueued.Add(1)
		} else {
			h.dropped.Add(1)
		}
	}
}

// publishToRoom delivers an already-built event to a room, skipping the
// originating session.
func (h *Hub) publishToRoom(ev event.WsEvent, roomID, originSessionID string) {
	for _, c := range h.roomClients(roomID) {
		if c.ID == originSessionID {
			continue
		}
		if c.SafeSend(ev, sendTimeout) {
			h.enqueued.Add(1)
		} else {
			h.dropped.Add(1)
		}
	}
}

// roomClients snapshots a room's sessions without holding the shard lock
// during delivery.
func (h *Hub) roomClients(roomID string) []*Client {
	b := h.shards[getShard(roomID)]

	b.RLock()
	defer b.RUnlock()

	room, ok := b.rooms[roomID]
	if !ok || len(room) == 0 {
		return nil
	}

	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	return clients
}

func getShard(roomID string) uint32 {
	if roomID == "" {
		return 0
	}

	sum := sha1.Sum([]byte(roomID))
	return binary.BigEndian.Uint32(sum[:4]) % shardCount
}

// -----------------------------------------------------------------
// Membership
// -----------------------------------------------------------------

func (h *Hub) addClient(c *Client) {
	h.sessionsMu.Lock()
	h.sessions[c.ID] = c
	h.sessionsMu.Unlock()
}

// joinRoom is idempotent; a session may belong to many rooms.
func (h *Hub) joinRoom(c *Client, roomID string) {
	if roomID == "" {
		h.sendError(c, "", "invalid_room", "roomId is required")
		return
	}

	sh := getShard(roomID)
	b := h.shards[sh]
	b.Lock()
	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		b.rooms[roomID] = room
	}
	room[c.ID] = c
	b.Unlock()

	c.trackJoin(roomID)
	h.logger.Debug("session joined room",
		zap.String("session_id", c.ID),
		zap.String("room_id", roomID),
		zap.Uint32("shard", sh),
	)
}

// leaveRoom is idempotent.
func (h *Hub) leaveRoom(c *Client, roomID string) {
	if roomID == "" {
		return
	}

	b := h.shards[getShard(roomID)]
	b.Lock()
	if room, ok := b.rooms[roomID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(b.rooms, roomID)
		}
	}
	b.Unlock()

	c.trackLeave(roomID)
}

// removeClient drops the session from every room it had joined. Durable
// state is untouched; only future delivery is cancelled.
func (h *Hub) removeClient(c *Client) {
	for _, roomID := range c.JoinedRooms() {
		h.leaveRoom(c, roomID)
	}

	h.sessionsMu.Lock()
	delete(h.sessions, c.ID)
	h.sessionsMu.Unlock()

	c.Close()
	h.logger.Info("session removed",
		zap.String("session_id", c.ID),
		zap.String("user_id", c.userID),
	)
}

// Stop cancels the hub context and waits for the worker pool to drain.
// The inbound channel is never closed: reader pumps may still be selecting
// on it until their connections die, and they bail out via the context.
func (h *Hub) Stop() {
	h.cancel()

	h.sessionsMu.RLock()
	for _, c := range h.sessions {
		c.Close()
	}
	h.sessionsMu.RUnlock()

	h.wg.Wait()
}

// -----------------------------------------------------------------
// Websocket upgrade
// -----------------------------------------------------------------

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	switch origin {
	case "", "http://localhost:3000":
		return true
	case "https://www.afghanbazar.com":
		return true
	default:
		return false
	}
}

// ServeWS upgrades an already-authenticated request into a live session.
// Credential verification happens before this is called; an unauthenticated
// request never reaches the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, conn, h)
}

var _ service.Broadcaster = (*Hub)(nil)
