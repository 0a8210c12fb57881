package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LastMessage stores the most recent visible message preview for a summary.
type LastMessage struct {
	MessageID string    `json:"messageId" bson:"message_id"`
	Body      string    `json:"body" bson:"body"`
	Type      string    `json:"type" bson:"type"`
	SenderID  string    `json:"senderId" bson:"sender_id"`
	SentAt    time.Time `json:"sentAt" bson:"sent_at"`
}

// ConversationSummary is the materialized per-user view of one store
// conversation: last message preview, unread count and last activity.
// It is maintained write-through on every message event, never recomputed
// from the raw log on read.
type ConversationSummary struct {
	ID           primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	UserID       string             `json:"userId" bson:"user_id"`
	StoreID      string             `json:"storeId" bson:"store_id"`
	LastMessage  *LastMessage       `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
	UnreadCount  int64              `json:"unreadCount" bson:"unread_count"`
	LastActivity time.Time          `json:"lastActivity" bson:"last_activity"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updated_at"`
}

// Preview builds the summary snapshot for a message. Soft-deleted messages
// never become a preview.
func Preview(m *Message) *LastMessage {
	if m == nil || m.Deleted {
		return nil
	}
	return &LastMessage{
		MessageID: m.MessageID,
		Body:      m.Body,
		Type:      m.Type,
		SenderID:  m.SenderID,
		SentAt:    m.CreatedAt,
	}
}
