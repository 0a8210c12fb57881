package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/cache"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/directory"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/repo"
)

const summaryCacheTTL = 30 * time.Second

// Broadcaster fans a persisted message out to the live sessions of its room.
// Returns how many sessions the event was enqueued for. Delivered pushes the
// receipt confirmation back to the sender's own sessions.
type Broadcaster interface {
	Broadcast(msg *model.Message) (int, error)
	Delivered(msg *model.Message)
}

// SendInput carries the caller-supplied fields of a new message.
type SendInput struct {
	Body        string
	Type        string
	Attachments []string
	RecipientID string
	ReplyTo     *string
}

// ChatService orchestrates every message event: durable write first, then the
// conversation index, then best-effort fan-out.
type ChatService interface {
	Send(ctx context.Context, senderID, storeID string, in SendInput) (*model.Message, error)
	History(ctx context.Context, viewerID, storeID string, page, limit int64) ([]model.Message, error)
	MarkRead(ctx context.Context, viewerID, messageID string) (*model.Message, error)
	Delete(ctx context.Context, actorID, messageID string) (*model.Message, error)
	Conversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)

	// SetBroadcaster wires the live fan-out after hub construction.
	SetBroadcaster(b Broadcaster)
}

type chatService struct {
	messages  repo.MessageRepository
	summaries repo.SummaryRepository
	stores    directory.Stores
	cache     cache.Cache
	logger    *zap.Logger

	broadcasterMu sync.RWMutex
	broadcaster   Broadcaster
}

func NewChatService(
	messages repo.MessageRepository,
	summaries repo.SummaryRepository,
	stores directory.Stores,
	c cache.Cache,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		messages:  messages,
		summaries: summaries,
		stores:    stores,
		cache:     c,
		logger:    logger,
	}
}

func (s *chatService) SetBroadcaster(b Broadcaster) {
	s.broadcasterMu.Lock()
	s.broadcaster = b
	s.broadcasterMu.Unlock()
}

func (s *chatService) getBroadcaster() Broadcaster {
	s.broadcasterMu.RLock()
	defer s.broadcasterMu.RUnlock()
	return s.broadcaster
}

// -----------------------------------------------------------------------------
// Send
// -----------------------------------------------------------------------------

func (s *chatService) Send(ctx context.Context, senderID, storeID string, in SendInput) (*model.Message, error) {
	if err := validateSend(in); err != nil {
		return nil, err
	}

	owner, err := s.stores.OwnerOf(ctx, storeID)
	if err != nil {
		return nil, err
	}

	recipient, err := resolveRecipient(senderID, owner, in.RecipientID)
	if err != nil {
		return nil, err
	}

	msgType := in.Type
	if msgType == "" {
		msgType = model.TypeText
	}

	msg := &model.Message{
		StoreID:     storeID,
		SenderID:    senderID,
		RecipientID: recipient,
		Type:        msgType,
		Body:        in.Body,
		Attachments: in.Attachments,
		ReplyTo:     in.ReplyTo,
	}

	// Durable write first, index second, fan-out last. A client must never
	// see a message over the live channel that is not yet persisted.
	msg, err = s.messages.Append(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := s.summaries.ApplyAppend(ctx, msg); err != nil {
		return nil, err
	}

	s.invalidateSummaries(ctx, msg.SenderID, msg.RecipientID)
	s.fanOut(ctx, msg)

	return msg, nil
}

// fanOut pushes the persisted message to live sessions. Failures are logged
// and swallowed: the message is durable and retrievable via history sync.
func (s *chatService) fanOut(ctx context.Context, msg *model.Message) {
	b := s.getBroadcaster()
	if b == nil {
		return
	}

	n, err := b.Broadcast(msg)
	if err != nil {
		s.logger.Warn("broadcast failed",
			zap.String("message_id", msg.MessageID),
			zap.String("store_id", msg.StoreID),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err),
		)
		return
	}
	if n == 0 {
		return
	}

	// Advisory only: at least one live session had the event enqueued.
	if err := s.messages.MarkDelivered(ctx, msg.MessageID); err != nil {
		s.logger.Warn("delivered flag not recorded",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return
	}
	now := time.Now().UTC()
	msg.Delivered = true
	msg.DeliveredAt = &now
	b.Delivered(msg)
}

func validateSend(in SendInput) error {
	if in.Body == "" && len(in.Attachments) == 0 {
		return apperr.Validation("empty_body", "message body cannot be empty")
	}
	if len(in.Body) > model.MaxBodyLength {
		return apperr.Validation("body_too_long", "message body exceeds the allowed length")
	}
	if in.Type != "" && !model.ValidType(in.Type) {
		return apperr.Validation("invalid_type", "unknown message type")
	}
	return nil
}

// resolveRecipient applies the recipient policy: a shopper always addresses
// the store owner; the owner must name which shopper they are replying to,
// since one store conversation aggregates many shoppers.
func resolveRecipient(senderID, ownerID, explicit string) (string, error) {
	if senderID != ownerID {
		return ownerID, nil
	}
	if explicit == "" {
		return "", apperr.Validation("recipient_required", "store owner must specify the shopper to reply to")
	}
	if explicit == ownerID {
		return "", apperr.Validation("invalid_recipient", "recipient cannot be the store owner")
	}
	return explicit, nil
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func (s *chatService) History(ctx context.Context, viewerID, storeID string, page, limit int64) ([]model.Message, error) {
	if err := s.authorizeConversation(ctx, viewerID, storeID); err != nil {
		return nil, err
	}

	// Catch-up side effect: everything addressed to the viewer in this room
	// becomes delivered+read before the page is served, so the page reflects
	// its own receipt transition.
	n, err := s.messages.MarkConversationRead(ctx, storeID, viewerID)
	if err != nil {
		s.logger.Warn("catch-up read marking failed",
			zap.String("store_id", storeID),
			zap.String("viewer_id", viewerID),
			zap.Error(err),
		)
	} else if n > 0 {
		if err := s.summaries.ResetUnread(ctx, storeID, viewerID); err != nil {
			s.logger.Warn("unread reset failed",
				zap.String("store_id", storeID),
				zap.String("viewer_id", viewerID),
				zap.Error(err),
			)
		}
		s.invalidateSummaries(ctx, viewerID)
	}

	return s.messages.History(ctx, storeID, page, limit)
}

func (s *chatService) authorizeConversation(ctx context.Context, viewerID, storeID string) error {
	owner, err := s.stores.OwnerOf(ctx, storeID)
	if err != nil {
		return err
	}
	if viewerID == owner {
		return nil
	}

	participated, err := s.messages.HasParticipated(ctx, storeID, viewerID)
	if err != nil {
		return err
	}
	if !participated {
		return apperr.Authorization("not_participant", "caller is not a participant of this conversation")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Receipt and delete transitions
// -----------------------------------------------------------------------------

func (s *chatService) MarkRead(ctx context.Context, viewerID, messageID string) (*model.Message, error) {
	msg, changed, err := s.messages.MarkRead(ctx, messageID, viewerID)
	if err != nil {
		return nil, err
	}
	if !changed {
		if msg.Deleted {
			tomb := msg.AsTombstone()
			return &tomb, nil
		}
		return msg, nil
	}

	if err := s.summaries.DecrementUnread(ctx, msg.StoreID, viewerID); err != nil {
		s.logger.Warn("unread decrement failed",
			zap.String("store_id", msg.StoreID),
			zap.String("viewer_id", viewerID),
			zap.Error(err),
		)
	}
	s.invalidateSummaries(ctx, viewerID)

	return msg, nil
}

func (s *chatService) Delete(ctx context.Context, actorID, messageID string) (*model.Message, error) {
	msg, changed, err := s.messages.SoftDelete(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	if !changed {
		tomb := msg.AsTombstone()
		return &tomb, nil
	}

	// Unread counts only cover non-deleted messages, so tombstoning an
	// unread one releases the recipient's counter. SoftDelete reports the
	// pre-delete receipt flags, so no separate fetch can race a concurrent
	// mark-read.
	if !msg.Read {
		if err := s.summaries.DecrementUnread(ctx, msg.StoreID, msg.RecipientID); err != nil {
			s.logger.Warn("unread decrement failed",
				zap.String("store_id", msg.StoreID),
				zap.String("user_id", msg.RecipientID),
				zap.Error(err),
			)
		}
	}

	// If the deleted message was a summary's snapshot, walk back to the
	// nearest surviving message.
	fallback, err := s.messages.LatestVisible(ctx, msg.StoreID)
	if err != nil {
		s.logger.Warn("last-message fallback lookup failed",
			zap.String("store_id", msg.StoreID),
			zap.Error(err),
		)
	} else if err := s.summaries.ReplaceLastMessage(ctx, msg.StoreID, msg.MessageID, model.Preview(fallback)); err != nil {
		s.logger.Warn("last-message replacement failed",
			zap.String("store_id", msg.StoreID),
			zap.Error(err),
		)
	}

	s.invalidateSummaries(ctx, msg.SenderID, msg.RecipientID)

	tomb := msg.AsTombstone()
	return &tomb, nil
}

// -----------------------------------------------------------------------------
// Conversation listing
// -----------------------------------------------------------------------------

func (s *chatService) Conversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	key := summaryCacheKey(userID)

	if cached, err := s.cache.Get(ctx, key); err == nil {
		var summaries []model.ConversationSummary
		if err := json.Unmarshal([]byte(cached), &summaries); err == nil {
			return summaries, nil
		}
		// Corrupt entry: fall through to the index.
		_ = s.cache.Del(ctx, key)
	}

	summaries, err := s.summaries.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(summaries); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), summaryCacheTTL); err != nil {
			s.logger.Debug("summary cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return summaries, nil
}

func (s *chatService) invalidateSummaries(ctx context.Context, userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, summaryCacheKey(id))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Debug("summary cache invalidation failed", zap.Error(err))
	}
}

func summaryCacheKey(userID string) string {
	return "chat:summaries:" + userID
}
