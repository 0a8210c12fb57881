package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/db"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
)

const lookupTimeout = 5 * time.Second

// Stores resolves a store's owning merchant. The store/product directory
// itself is owned by the wider platform; this service only reads it.
type Stores interface {
	OwnerOf(ctx context.Context, storeID string) (string, error)
}

type mongoStores struct {
	repo   *db.Repository[model.Store]
	logger *zap.Logger
}

func NewMongoStores(con *mongo.Database, collection string, logger *zap.Logger) Stores {
	return &mongoStores{
		repo:   db.NewRepository[model.Store](con, collection),
		logger: logger,
	}
}

func (s *mongoStores) OwnerOf(ctx context.Context, storeID string) (string, error) {
	if storeID == "" {
		return "", apperr.Validation("invalid_store", "store id cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("store_id", storeID).Eq("is_active", true).Build()

	store, err := s.repo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", apperr.NotFound("store_not_found", "store does not exist")
		}
		s.logger.Error("store lookup failed", zap.String("store_id", storeID), zap.Error(err))
		return "", apperr.Transient("store_lookup_failed", "store directory unavailable", err)
	}

	if store.OwnerID == "" {
		return "", fmt.Errorf("store %s has no owner", storeID)
	}

	return store.OwnerID, nil
}
