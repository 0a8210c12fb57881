package event

import "encoding/json"

// Client-originated events.
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventSend   = "send"
	EventTyping = "typing"
)

// Server-originated events.
const (
	EventNewMessage = "new-message"
	EventDelivered  = "delivered"
	EventError      = "error"
)

// WsEvent is the envelope for every frame on the live channel.
type WsEvent struct {
	Event   string          `json:"event"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendPayload is the client payload for EventSend.
type SendPayload struct {
	Body        string   `json:"body"`
	Type        string   `json:"type,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	RecipientID string   `json:"recipientId,omitempty"`
	ReplyTo     *string  `json:"replyTo,omitempty"`
}

// TypingPayload is relayed to the room verbatim, never persisted.
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// DeliveredPayload confirms a best-effort fan-out back to the sender.
type DeliveredPayload struct {
	MessageID   string `json:"messageId"`
	DeliveredAt string `json:"deliveredAt"`
}

// ErrorPayload is emitted to the originating session only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope marshals payload into a WsEvent frame.
func Envelope(name, roomID string, payload any) (WsEvent, error) {
	ev := WsEvent{Event: name, RoomID: roomID}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	ev.Payload = raw
	return ev, nil
}
