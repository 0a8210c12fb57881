package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the slice of the platform's store document this service reads:
// enough to resolve a conversation key to its owning merchant.
type Store struct {
	ID        primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	StoreID   string             `json:"storeId" bson:"store_id"`
	OwnerID   string             `json:"ownerId" bson:"owner_id"`
	Name      string             `json:"name" bson:"name"`
	IsActive  bool               `json:"isActive" bson:"is_active"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}
