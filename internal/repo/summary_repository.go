package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/db"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
)

// SummaryRepository is the Conversation Index: the materialized per-user
// summary view keyed (user_id, store_id). All counter mutations happen as
// atomic mongo updates so concurrent senders and readers cannot lose them.
type SummaryRepository interface {
	// ApplyAppend write-throughs a freshly appended message: snapshot for
	// both participants, unread increment for the recipient only.
	ApplyAppend(ctx context.Context, msg *model.Message) error

	// DecrementUnread lowers the unread counter by one, never below zero.
	DecrementUnread(ctx context.Context, storeID, userID string) error

	// ResetUnread zeroes the unread counter after a catch-up read.
	ResetUnread(ctx context.Context, storeID, userID string) error

	// ReplaceLastMessage swaps the snapshot on every summary of the store
	// still pointing at replacedID. Used for the soft-delete fallback.
	ReplaceLastMessage(ctx context.Context, storeID, replacedID string, fallback *model.LastMessage) error

	// ListForUser returns the caller's summaries, most recent activity first.
	ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error)
}

type summaryRepository struct {
	mongoRepo *db.Repository[model.ConversationSummary]
	logger    *zap.Logger
}

func NewSummaryRepository(mongoRepo *db.Repository[model.ConversationSummary], logger *zap.Logger) SummaryRepository {
	return &summaryRepository{
		mongoRepo: mongoRepo,
		logger:    logger,
	}
}

func (s *summaryRepository) ApplyAppend(ctx context.Context, msg *model.Message) error {
	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	preview := model.Preview(msg)
	now := time.Now().UTC()

	for _, userID := range msg.Participants() {
		filter := db.NewFilter().
			Eq("user_id", userID).
			Eq("store_id", msg.StoreID).
			Build()

		update := bson.M{
			"$set": bson.M{
				"last_message":  preview,
				"last_activity": msg.CreatedAt,
				"updated_at":    now,
			},
			"$setOnInsert": bson.M{
				"user_id":  userID,
				"store_id": msg.StoreID,
			},
		}
		if userID == msg.RecipientID {
			update["$inc"] = bson.M{"unread_count": int64(1)}
		}

		if _, err := s.mongoRepo.Upsert(ctx, filter, update); err != nil {
			s.logger.Error("summary upsert failed",
				zap.String("user_id", userID),
				zap.String("store_id", msg.StoreID),
				zap.Error(err),
			)
			return apperr.Transient("index_update_failed", "conversation index unavailable", err)
		}
	}

	return nil
}

func (s *summaryRepository) DecrementUnread(ctx context.Context, storeID, userID string) error {
	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// Guarded by the unread_count filter so the counter can never go below
	// zero, no matter how many times a read is re-applied.
	filter := db.NewFilter().
		Eq("user_id", userID).
		Eq("store_id", storeID).
		Gt("unread_count", 0).
		Build()
	update := bson.M{
		"$inc": bson.M{"unread_count": int64(-1)},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	if _, err := s.mongoRepo.UpdateOne(ctx, filter, update); err != nil {
		return apperr.Transient("index_update_failed", "conversation index unavailable", err)
	}
	return nil
}

func (s *summaryRepository) ResetUnread(ctx context.Context, storeID, userID string) error {
	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("user_id", userID).
		Eq("store_id", storeID).
		Build()
	update := bson.M{
		"$set": bson.M{
			"unread_count": int64(0),
			"updated_at":   time.Now().UTC(),
		},
	}

	if _, err := s.mongoRepo.UpdateOne(ctx, filter, update); err != nil {
		return apperr.Transient("index_update_failed", "conversation index unavailable", err)
	}
	return nil
}

func (s *summaryRepository) ReplaceLastMessage(ctx context.Context, storeID, replacedID string, fallback *model.LastMessage) error {
	ctx, cancel := s.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("store_id", storeID).
		Eq("last_message.message_id", replacedID).
		Build()

	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if fallback != nil {
		update["$set"].(bson.M)["last_message"] = fallback
		update["$set"].(bson.M)["last_activity"] = fallback.SentAt
	} else {
		// Nothing visible remains in the conversation; keep the row, drop
		// the snapshot.
		update["$unset"] = bson.M{"last_message": ""}
	}

	result, err := s.mongoRepo.UpdateMany(ctx, filter, update)
	if err != nil {
		return apperr.Transient("index_update_failed", "conversation index unavailable", err)
	}

	if result.ModifiedCount > 0 {
		s.logger.Debug("last-message snapshot replaced",
			zap.String("store_id", storeID),
			zap.String("replaced_id", replacedID),
			zap.Int64("count", result.ModifiedCount),
		)
	}
	return nil
}

func (s *summaryRepository) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	if userID == "" {
		return nil, apperr.Validation("invalid_user_id", "user id cannot be empty")
	}

	ctx, cancel := s.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	sort := bson.D{{Key: "last_activity", Value: -1}}

	summaries, err := s.mongoRepo.FindAll(ctx, filter, sort)
	if err != nil {
		s.logger.Error("summary list failed", zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.Transient("index_read_failed", "conversation index unavailable", err)
	}
	return summaries, nil
}

func (s *summaryRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
