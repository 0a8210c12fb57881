package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message types accepted on the wire.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeLocation = "location"
	TypeContact  = "contact"
)

// MaxBodyLength bounds the size of a message body.
const MaxBodyLength = 4000

// ValidType reports whether t is an accepted message type.
func ValidType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypeLocation, TypeContact:
		return true
	}
	return false
}

// Message represents one chat message in MongoDB. The conversation key is the
// store id; Seq is assigned at append time and is strictly increasing within
// one store's conversation.
type Message struct {
	ID          primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	MessageID   string             `json:"messageId" bson:"message_id"`
	StoreID     string             `json:"storeId" bson:"store_id"`
	Seq         int64              `json:"seq" bson:"seq"`
	SenderID    string             `json:"senderId" bson:"sender_id"`
	RecipientID string             `json:"recipientId" bson:"recipient_id"`
	Type        string             `json:"type" bson:"type"`
	Body        string             `json:"body" bson:"body"`
	Attachments []string           `json:"attachments,omitempty" bson:"attachments,omitempty"`
	ReplyTo     *string            `json:"replyTo,omitempty" bson:"reply_to,omitempty"`
	Delivered   bool               `json:"delivered" bson:"delivered"`
	DeliveredAt *time.Time         `json:"deliveredAt,omitempty" bson:"delivered_at,omitempty"`
	Read        bool               `json:"read" bson:"read"`
	ReadAt      *time.Time         `json:"readAt,omitempty" bson:"read_at,omitempty"`
	Deleted     bool               `json:"deleted" bson:"deleted"`
	DeletedAt   *time.Time         `json:"deletedAt,omitempty" bson:"deleted_at,omitempty"`
	CreatedAt   time.Time          `json:"createdAt" bson:"created_at"`
}

// AsTombstone returns a viewer-facing copy of a soft-deleted message: the
// sequence slot and metadata survive, the body and attachments do not.
func (m Message) AsTombstone() Message {
	m.Body = ""
	m.Attachments = nil
	m.ReplyTo = nil
	return m
}

// Participants returns both user ids party to the message.
func (m Message) Participants() []string {
	return []string{m.SenderID, m.RecipientID}
}
