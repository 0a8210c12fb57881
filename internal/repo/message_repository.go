package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/db"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
)

var (
	ErrInvalidMessage = errors.New("invalid message: message cannot be nil")
	ErrInvalidStoreID = errors.New("invalid store ID: cannot be empty")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// MessageRepository is the Message Store: the durable, ordered log of
// messages per store conversation.
type MessageRepository interface {
	// Append assigns the next sequence for msg.StoreID and persists the
	// message. The write is durable when Append returns nil.
	Append(ctx context.Context, msg *model.Message) (*model.Message, error)

	// GetByID fetches one message by its message id.
	GetByID(ctx context.Context, messageID string) (*model.Message, error)

	// History returns the page-th newest page of the conversation, ordered
	// oldest-first. Soft-deleted messages come back as tombstones.
	History(ctx context.Context, storeID string, page, limit int64) ([]model.Message, error)

	// MarkRead transitions one message to read. Recipient-only; marking an
	// already-read or soft-deleted message is a no-op, reported by the bool.
	MarkRead(ctx context.Context, messageID, viewerID string) (*model.Message, bool, error)

	// MarkConversationRead marks every unread message addressed to viewerID
	// in the conversation as delivered and read, returning how many changed.
	MarkConversationRead(ctx context.Context, storeID, viewerID string) (int64, error)

	// MarkDelivered sets the advisory delivered flag. Idempotent.
	MarkDelivered(ctx context.Context, messageID string) error

	// SoftDelete tombstones a message. Sender-only; the bool reports whether
	// this call performed the transition. The returned message carries the
	// pre-delete receipt flags so callers can settle unread accounting
	// without a second fetch.
	SoftDelete(ctx context.Context, messageID, actorID string) (*model.Message, bool, error)

	// LatestVisible returns the most recent non-deleted message of the
	// conversation, or nil when none remain.
	LatestVisible(ctx context.Context, storeID string) (*model.Message, error)

	// HasParticipated reports whether userID has exchanged at least one
	// message in the conversation.
	HasParticipated(ctx context.Context, storeID, userID string) (bool, error)
}

type messageRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.Message]
	counters  string
	logger    *zap.Logger

	// per-conversation ordering point for Append
	appendLocks *keyedMutex
}

func NewMessageRepository(con *mongo.Database, mongoRepo *db.Repository[model.Message], countersCollection string, logger *zap.Logger) MessageRepository {
	return &messageRepository{
		con:         con,
		mongoRepo:   mongoRepo,
		counters:    countersCollection,
		logger:      logger,
		appendLocks: newKeyedMutex(),
	}
}

// -----------------------------------------------------------------------------
// Append
// -----------------------------------------------------------------------------

func (m *messageRepository) Append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := m.validateMessage(msg); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// Sequence assignment and insert must not interleave for one store.
	m.appendLocks.Lock(msg.StoreID)
	defer m.appendLocks.Unlock(msg.StoreID)

	seq, err := db.NextSequence(ctx, m.con, m.counters, "messages:"+msg.StoreID)
	if err != nil {
		m.logger.Error("sequence assignment failed",
			zap.String("store_id", msg.StoreID),
			zap.Error(err),
		)
		return nil, apperr.Transient("sequence_failed", "could not assign message sequence", err)
	}

	msg.MessageID = uuid.New().String()
	msg.Seq = seq
	msg.CreatedAt = time.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			m.logger.Warn("retrying message insert",
				zap.String("store_id", msg.StoreID),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}
			m.logger.Info("message appended",
				zap.String("inserted_id", insertedID),
				zap.String("message_id", msg.MessageID),
				zap.String("store_id", msg.StoreID),
				zap.Int64("seq", msg.Seq),
			)
			return msg, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}
	}

	m.logger.Error("failed to append message after all retries",
		zap.Error(lastErr),
		zap.String("store_id", msg.StoreID),
	)
	return nil, apperr.Transient("append_failed", "message store unavailable", lastErr)
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (m *messageRepository) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	if messageID == "" {
		return nil, apperr.Validation("invalid_message_id", "message id cannot be empty")
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("message_id", messageID).Build()

	msg, err := m.mongoRepo.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message_not_found", "message does not exist")
		}
		return nil, m.handleReadError(err, messageID)
	}
	return msg, nil
}

func (m *messageRepository) History(ctx context.Context, storeID string, page, limit int64) ([]model.Message, error) {
	if err := m.validateStoreID(storeID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultHistoryPageSize
	}
	if limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("store_id", storeID).Build()

	// Page over seq descending so page 1 is the newest slice, then flip it
	// for chronological display.
	result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: limit,
		SortBy:   "seq",
		SortDesc: true,
	})
	if err != nil {
		return nil, m.handleReadError(err, storeID)
	}

	msgs := make([]model.Message, 0, len(result.Data))
	for i := len(result.Data) - 1; i >= 0; i-- {
		msg := result.Data[i]
		if msg.Deleted {
			msg = msg.AsTombstone()
		}
		msgs = append(msgs, msg)
	}

	m.logger.Debug("history page read",
		zap.String("store_id", storeID),
		zap.Int64("page", result.Page),
		zap.Int("count", len(msgs)),
		zap.Int64("total", result.Total),
	)
	return msgs, nil
}

func (m *messageRepository) LatestVisible(ctx context.Context, storeID string) (*model.Message, error) {
	if err := m.validateStoreID(storeID); err != nil {
		return nil, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("store_id", storeID).Eq("deleted", false).Build()

	result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     1,
		PageSize: 1,
		SortBy:   "seq",
		SortDesc: true,
	})
	if err != nil {
		return nil, m.handleReadError(err, storeID)
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	msg := result.Data[0]
	return &msg, nil
}

func (m *messageRepository) HasParticipated(ctx context.Context, storeID, userID string) (bool, error) {
	if err := m.validateStoreID(storeID); err != nil {
		return false, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("store_id", storeID).
		Or(
			db.NewFilter().Eq("sender_id", userID).Build(),
			db.NewFilter().Eq("recipient_id", userID).Build(),
		).
		Build()

	return m.mongoRepo.Exists(ctx, filter)
}

// -----------------------------------------------------------------------------
// Receipt transitions
// -----------------------------------------------------------------------------

func (m *messageRepository) MarkRead(ctx context.Context, messageID, viewerID string) (*model.Message, bool, error) {
	msg, err := m.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.RecipientID != viewerID {
		return nil, false, apperr.Authorization("not_recipient", "only the recipient may mark a message read")
	}
	if msg.Read {
		// Idempotent: the second call is a no-op, not an error.
		return msg, false, nil
	}
	if msg.Deleted {
		// A tombstone left unread accounting when it was deleted; marking it
		// read must not touch the counter again.
		return msg, false, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	filter := db.NewFilter().
		Eq("message_id", messageID).
		Eq("recipient_id", viewerID).
		Eq("read", false).
		Eq("deleted", false).
		Build()
	update := bson.M{"$set": bson.M{
		"read":         true,
		"read_at":      now,
		"delivered":    true,
		"delivered_at": now,
	}}

	result, err := m.mongoRepo.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, false, apperr.Transient("mark_read_failed", "message store unavailable", err)
	}
	if result.ModifiedCount == 0 {
		// Lost the race with another mark-read; treat as the no-op case.
		return msg, false, nil
	}

	msg.Read = true
	msg.ReadAt = &now
	msg.Delivered = true
	if msg.DeliveredAt == nil {
		msg.DeliveredAt = &now
	}
	return msg, true, nil
}

func (m *messageRepository) MarkConversationRead(ctx context.Context, storeID, viewerID string) (int64, error) {
	if err := m.validateStoreID(storeID); err != nil {
		return 0, err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	filter := db.NewFilter().
		Eq("store_id", storeID).
		Eq("recipient_id", viewerID).
		Eq("read", false).
		Eq("deleted", false).
		Build()
	update := bson.M{"$set": bson.M{
		"read":         true,
		"read_at":      now,
		"delivered":    true,
		"delivered_at": now,
	}}

	result, err := m.mongoRepo.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, apperr.Transient("mark_read_failed", "message store unavailable", err)
	}

	if result.ModifiedCount > 0 {
		m.logger.Debug("conversation marked read",
			zap.String("store_id", storeID),
			zap.String("viewer_id", viewerID),
			zap.Int64("count", result.ModifiedCount),
		)
	}
	return result.ModifiedCount, nil
}

func (m *messageRepository) MarkDelivered(ctx context.Context, messageID string) error {
	if messageID == "" {
		return apperr.Validation("invalid_message_id", "message id cannot be empty")
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("message_id", messageID).Eq("delivered", false).Build()
	update := bson.M{"$set": bson.M{
		"delivered":    true,
		"delivered_at": time.Now().UTC(),
	}}

	if _, err := m.mongoRepo.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Soft delete
// -----------------------------------------------------------------------------

func (m *messageRepository) SoftDelete(ctx context.Context, messageID, actorID string) (*model.Message, bool, error) {
	msg, err := m.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.SenderID != actorID {
		return nil, false, apperr.Authorization("not_sender", "only the sender may delete a message")
	}
	if msg.Deleted {
		return msg, false, nil
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	filter := db.NewFilter().
		Eq("message_id", messageID).
		Eq("sender_id", actorID).
		Eq("deleted", false).
		Build()
	update := bson.M{"$set": bson.M{
		"deleted":    true,
		"deleted_at": now,
	}}

	result, err := m.mongoRepo.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, false, apperr.Transient("delete_failed", "message store unavailable", err)
	}
	if result.ModifiedCount == 0 {
		return msg, false, nil
	}

	msg.Deleted = true
	msg.DeletedAt = &now

	m.logger.Info("message soft-deleted",
		zap.String("message_id", messageID),
		zap.String("store_id", msg.StoreID),
	)
	return msg, true, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.StoreID == "" {
		return ErrInvalidStoreID
	}
	return nil
}

func (m *messageRepository) validateStoreID(storeID string) error {
	if storeID == "" {
		return ErrInvalidStoreID
	}
	return nil
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (m *messageRepository) handleReadError(err error, key string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("key", key))
		return apperr.Transient("read_timeout", "message store timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("key", key))
	return apperr.Transient("read_failed", "message store unavailable", err)
}
