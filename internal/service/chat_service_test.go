package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/cache"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
)

// -----------------------------------------------------------------
// In-memory fakes
// -----------------------------------------------------------------

type fakeMessages struct {
	mu   sync.Mutex
	msgs []*model.Message
	seqs map[string]int64
	next int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{seqs: make(map[string]int64)}
}

func (f *fakeMessages) Append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seqs[msg.StoreID]++
	f.next++

	stored := *msg
	stored.Seq = f.seqs[msg.StoreID]
	stored.MessageID = fmt.Sprintf("m-%d", f.next)
	stored.CreatedAt = time.Now().UTC().Add(time.Duration(f.next) * time.Millisecond)
	f.msgs = append(f.msgs, &stored)

	out := stored
	return &out, nil
}

func (f *fakeMessages) find(messageID string) *model.Message {
	for _, m := range f.msgs {
		if m.MessageID == messageID {
			return m
		}
	}
	return nil
}

func (f *fakeMessages) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.find(messageID)
	if m == nil {
		return nil, apperr.NotFound("message_not_found", "message does not exist")
	}
	out := *m
	return &out, nil
}

func (f *fakeMessages) History(ctx context.Context, storeID string, page, limit int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []model.Message
	for _, m := range f.msgs {
		if m.StoreID == storeID {
			all = append(all, *m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	end := int64(len(all)) - (page-1)*limit
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]model.Message, 0, end-start)
	for _, m := range all[start:end] {
		if m.Deleted {
			m = m.AsTombstone()
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMessages) MarkRead(ctx context.Context, messageID, viewerID string) (*model.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.find(messageID)
	if m == nil {
		return nil, false, apperr.NotFound("message_not_found", "message does not exist")
	}
	if m.RecipientID != viewerID {
		return nil, false, apperr.Authorization("not_recipient", "only the recipient may mark a message read")
	}
	if m.Read || m.Deleted {
		out := *m
		return &out, false, nil
	}

	now := time.Now().UTC()
	m.Read = true
	m.ReadAt = &now
	m.Delivered = true
	if m.DeliveredAt == nil {
		m.DeliveredAt = &now
	}
	out := *m
	return &out, true, nil
}

func (f *fakeMessages) MarkConversationRead(ctx context.Context, storeID, viewerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for _, m := range f.msgs {
		if m.StoreID == storeID && m.RecipientID == viewerID && !m.Read && !m.Deleted {
			m.Read = true
			m.ReadAt = &now
			m.Delivered = true
			if m.DeliveredAt == nil {
				m.DeliveredAt = &now
			}
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) MarkDelivered(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m := f.find(messageID); m != nil && !m.Delivered {
		now := time.Now().UTC()
		m.Delivered = true
		m.DeliveredAt = &now
	}
	return nil
}

func (f *fakeMessages) SoftDelete(ctx context.Context, messageID, actorID string) (*model.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.find(messageID)
	if m == nil {
		return nil, false, apperr.NotFound("message_not_found", "message does not exist")
	}
	if m.SenderID != actorID {
		return nil, false, apperr.Authorization("not_sender", "only the sender may delete a message")
	}
	if m.Deleted {
		out := *m
		return &out, false, nil
	}

	now := time.Now().UTC()
	m.Deleted = true
	m.DeletedAt = &now
	out := *m
	return &out, true, nil
}

func (f *fakeMessages) LatestVisible(ctx context.Context, storeID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *model.Message
	for _, m := range f.msgs {
		if m.StoreID == storeID && !m.Deleted {
			if latest == nil || m.Seq > latest.Seq {
				latest = m
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (f *fakeMessages) HasParticipated(ctx context.Context, storeID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.StoreID == storeID && (m.SenderID == userID || m.RecipientID == userID) {
			return true, nil
		}
	}
	return false, nil
}

type fakeSummaries struct {
	mu   sync.Mutex
	rows map[string]*model.ConversationSummary
}

func newFakeSummaries() *fakeSummaries {
	return &fakeSummaries{rows: make(map[string]*model.ConversationSummary)}
}

func summaryKey(userID, storeID string) string {
	return userID + "|" + storeID
}

func (f *fakeSummaries) get(userID, storeID string) *model.ConversationSummary {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[summaryKey(userID, storeID)]
	if !ok {
		return nil
	}
	out := *row
	return &out
}

func (f *fakeSummaries) ApplyAppend(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	preview := model.Preview(msg)
	for _, userID := range msg.Participants() {
		key := summaryKey(userID, msg.StoreID)
		row, ok := f.rows[key]
		if !ok {
			row = &model.ConversationSummary{UserID: userID, StoreID: msg.StoreID}
			f.rows[key] = row
		}
		row.LastMessage = preview
		row.LastActivity = msg.CreatedAt
		if userID == msg.RecipientID {
			row.UnreadCount++
		}
	}
	return nil
}

func (f *fakeSummaries) DecrementUnread(ctx context.Context, storeID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[summaryKey(userID, storeID)]; ok && row.UnreadCount > 0 {
		row.UnreadCount--
	}
	return nil
}

func (f *fakeSummaries) ResetUnread(ctx context.Context, storeID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[summaryKey(userID, storeID)]; ok {
		row.UnreadCount = 0
	}
	return nil
}

func (f *fakeSummaries) ReplaceLastMessage(ctx context.Context, storeID, replacedID string, fallback *model.LastMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.StoreID != storeID || row.LastMessage == nil || row.LastMessage.MessageID != replacedID {
			continue
		}
		row.LastMessage = fallback
		if fallback != nil {
			row.LastActivity = fallback.SentAt
		}
	}
	return nil
}

func (f *fakeSummaries) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.ConversationSummary
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

type fakeStores struct {
	owners map[string]string
}

func (f *fakeStores) OwnerOf(ctx context.Context, storeID string) (string, error) {
	owner, ok := f.owners[storeID]
	if !ok {
		return "", apperr.NotFound("store_not_found", "store does not exist")
	}
	return owner, nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	hits   int
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	f.hits++
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.sets++
	return nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeCache) Close() error { return nil }

type fakeBroadcaster struct {
	mu        sync.Mutex
	delivered int
	msgs      []*model.Message
	receipts  []*model.Message
}

func (f *fakeBroadcaster) Broadcast(msg *model.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.delivered, nil
}

func (f *fakeBroadcaster) Delivered(msg *model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, msg)
}

// -----------------------------------------------------------------
// Fixture
// -----------------------------------------------------------------

const (
	storeS   = "store-s"
	ownerB   = "user-b"
	shopperA = "user-a"
	shopperC = "user-c"
)

type fixture struct {
	svc       ChatService
	messages  *fakeMessages
	summaries *fakeSummaries
	cache     *fakeCache
	bcast     *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		messages:  newFakeMessages(),
		summaries: newFakeSummaries(),
		cache:     newFakeCache(),
		bcast:     &fakeBroadcaster{},
	}
	stores := &fakeStores{owners: map[string]string{storeS: ownerB}}

	f.svc = NewChatService(f.messages, f.summaries, stores, f.cache, zap.NewNop())
	f.svc.SetBroadcaster(f.bcast)
	return f
}

func mustSend(t *testing.T, f *fixture, sender, store string, in SendInput) *model.Message {
	t.Helper()
	msg, err := f.svc.Send(context.Background(), sender, store, in)
	if err != nil {
		t.Fatalf("Send(%s): %v", sender, err)
	}
	return msg
}

// -----------------------------------------------------------------
// Scenarios
// -----------------------------------------------------------------

func TestShopperSendResolvesOwner(t *testing.T) {
	f := newFixture(t)

	msg := mustSend(t, f, shopperA, storeS, SendInput{Body: "Hello"})

	if msg.SenderID != shopperA || msg.RecipientID != ownerB {
		t.Fatalf("recipient resolution: got sender=%s recipient=%s", msg.SenderID, msg.RecipientID)
	}
	if msg.Read {
		t.Fatal("new message must start unread")
	}
	if msg.Seq != 1 {
		t.Fatalf("first message seq = %d, want 1", msg.Seq)
	}

	owner := f.summaries.get(ownerB, storeS)
	if owner == nil || owner.UnreadCount != 1 {
		t.Fatalf("owner summary unread = %+v, want 1", owner)
	}
	sender := f.summaries.get(shopperA, storeS)
	if sender == nil || sender.UnreadCount != 0 {
		t.Fatalf("sender summary unread = %+v, want 0", sender)
	}
	if owner.LastMessage == nil || owner.LastMessage.Body != "Hello" {
		t.Fatalf("owner last message = %+v, want Hello", owner.LastMessage)
	}
}

func TestHistoryCatchUpMarksRead(t *testing.T) {
	f := newFixture(t)
	mustSend(t, f, shopperA, storeS, SendInput{Body: "Hello"})

	msgs, err := f.svc.History(context.Background(), ownerB, storeS, 1, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("history length = %d, want 1", len(msgs))
	}
	if !msgs[0].Read || !msgs[0].Delivered {
		t.Fatalf("catch-up page should reflect the read transition, got %+v", msgs[0])
	}

	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 0 {
		t.Fatalf("owner unread after catch-up = %d, want 0", got)
	}

	// Re-marking read is a no-op, not an error.
	msg, err := f.svc.MarkRead(context.Background(), ownerB, msgs[0].MessageID)
	if err != nil {
		t.Fatalf("MarkRead after catch-up: %v", err)
	}
	if !msg.Read {
		t.Fatal("message should stay read")
	}
	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 0 {
		t.Fatalf("unread after re-mark = %d, want 0 (never below zero)", got)
	}
}

func TestOwnerSendRequiresExplicitRecipient(t *testing.T) {
	f := newFixture(t)
	mustSend(t, f, shopperA, storeS, SendInput{Body: "Hello"})

	_, err := f.svc.Send(context.Background(), ownerB, storeS, SendInput{Body: "Hi"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("owner send without recipientId: got %v, want ValidationError", err)
	}

	msg := mustSend(t, f, ownerB, storeS, SendInput{Body: "Hi", RecipientID: shopperA})
	if msg.RecipientID != shopperA {
		t.Fatalf("owner reply recipient = %s, want %s", msg.RecipientID, shopperA)
	}
	if got := f.summaries.get(shopperA, storeS).UnreadCount; got != 1 {
		t.Fatalf("shopper unread = %d, want 1", got)
	}
}

func TestConcurrentSendsKeepDistinctSequences(t *testing.T) {
	f := newFixture(t)

	const perSender = 20
	var wg sync.WaitGroup
	for _, sender := range []string{shopperA, shopperC} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := f.svc.Send(context.Background(), sender, storeS, SendInput{Body: "msg"}); err != nil {
					t.Errorf("Send(%s): %v", sender, err)
					return
				}
			}
		}(sender)
	}
	wg.Wait()

	msgs, err := f.svc.History(context.Background(), ownerB, storeS, 1, 100)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2*perSender {
		t.Fatalf("history length = %d, want %d (no write lost)", len(msgs), 2*perSender)
	}

	seen := make(map[int64]bool)
	var prev int64
	for _, m := range msgs {
		if seen[m.Seq] {
			t.Fatalf("duplicate sequence %d", m.Seq)
		}
		seen[m.Seq] = true
		if m.Seq <= prev {
			t.Fatalf("sequence not strictly increasing: %d after %d", m.Seq, prev)
		}
		prev = m.Seq
	}
}

func TestMarkReadAuthorization(t *testing.T) {
	f := newFixture(t)
	msg := mustSend(t, f, shopperA, storeS, SendInput{Body: "Hello"})

	if _, err := f.svc.MarkRead(context.Background(), shopperA, msg.MessageID); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("sender marking own message read: got %v, want AuthorizationError", err)
	}
	if _, err := f.svc.MarkRead(context.Background(), ownerB, "missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("marking unknown message: got %v, want NotFoundError", err)
	}
}

func TestSoftDeleteTombstoneAndFallback(t *testing.T) {
	f := newFixture(t)
	first := mustSend(t, f, shopperA, storeS, SendInput{Body: "first"})
	second := mustSend(t, f, shopperA, storeS, SendInput{Body: "second"})

	// Only the sender may delete.
	if _, err := f.svc.Delete(context.Background(), ownerB, second.MessageID); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("non-sender delete: got %v, want AuthorizationError", err)
	}

	deleted, err := f.svc.Delete(context.Background(), shopperA, second.MessageID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted.Deleted || deleted.Body != "" {
		t.Fatalf("deleted message should be a blanked tombstone, got %+v", deleted)
	}

	msgs, err := f.svc.History(context.Background(), ownerB, storeS, 1, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("tombstone must preserve its ordering slot: history length = %d, want 2", len(msgs))
	}
	if msgs[1].Body != "" || !msgs[1].Deleted || msgs[1].Seq != second.Seq {
		t.Fatalf("tombstone slot wrong: %+v", msgs[1])
	}

	// The summary snapshot falls back to the nearest surviving message.
	row := f.summaries.get(ownerB, storeS)
	if row.LastMessage == nil || row.LastMessage.MessageID != first.MessageID {
		t.Fatalf("last message fallback = %+v, want %s", row.LastMessage, first.MessageID)
	}

	// Deleting the last visible message clears the snapshot.
	if _, err := f.svc.Delete(context.Background(), shopperA, first.MessageID); err != nil {
		t.Fatalf("Delete(first): %v", err)
	}
	if row := f.summaries.get(ownerB, storeS); row.LastMessage != nil {
		t.Fatalf("snapshot should be cleared when nothing visible remains, got %+v", row.LastMessage)
	}
}

func TestMarkReadDeletedMessageIsNoOp(t *testing.T) {
	f := newFixture(t)
	first := mustSend(t, f, shopperA, storeS, SendInput{Body: "first"})
	mustSend(t, f, shopperA, storeS, SendInput{Body: "second"})

	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 2 {
		t.Fatalf("unread before delete = %d, want 2", got)
	}

	// Deleting the unread first message already releases its counter slot.
	if _, err := f.svc.Delete(context.Background(), shopperA, first.MessageID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 1 {
		t.Fatalf("unread after delete = %d, want 1", got)
	}

	// Marking the tombstone read must not touch the counter again.
	msg, err := f.svc.MarkRead(context.Background(), ownerB, first.MessageID)
	if err != nil {
		t.Fatalf("MarkRead on tombstone: %v", err)
	}
	if msg.Read {
		t.Fatal("tombstone must not transition to read")
	}
	if msg.Body != "" {
		t.Fatalf("tombstone body leaked through mark-read: %q", msg.Body)
	}
	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 1 {
		t.Fatalf("unread after marking a deleted message read = %d, want 1 (second message still unread)", got)
	}
}

func TestDeleteReadMessageKeepsCounter(t *testing.T) {
	f := newFixture(t)
	first := mustSend(t, f, shopperA, storeS, SendInput{Body: "first"})
	mustSend(t, f, shopperA, storeS, SendInput{Body: "second"})

	if _, err := f.svc.MarkRead(context.Background(), ownerB, first.MessageID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 1 {
		t.Fatalf("unread after reading first = %d, want 1", got)
	}

	// Deleting an already-read message releases nothing: the pre-delete
	// receipt state reported by the store settles the accounting.
	if _, err := f.svc.Delete(context.Background(), shopperA, first.MessageID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 1 {
		t.Fatalf("unread after deleting a read message = %d, want 1", got)
	}
}

func TestDeleteUnreadReleasesCounter(t *testing.T) {
	f := newFixture(t)
	msg := mustSend(t, f, shopperA, storeS, SendInput{Body: "Hello"})

	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 1 {
		t.Fatalf("unread before delete = %d, want 1", got)
	}

	if _, err := f.svc.Delete(context.Background(), shopperA, msg.MessageID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.summaries.get(ownerB, storeS).UnreadCount; got != 0 {
		t.Fatalf("unread after deleting unread message = %d, want 0", got)
	}
}

func TestHistoryAuthorization(t *testing.T) {
	f := newFixture(t)
	mustSend(t, f, shopperA, storeS, SendInput{Body: "Hello"})

	if _, err := f.svc.History(context.Background(), shopperC, storeS, 1, 20); apperr.KindOf(err) != apperr.KindAuthorization {
		t.Fatalf("stranger reading conversation: got %v, want AuthorizationError", err)
	}

	// A participant with one exchanged message may read.
	mustSend(t, f, shopperC, storeS, SendInput{Body: "Hi there"})
	if _, err := f.svc.History(context.Background(), shopperC, storeS, 1, 20); err != nil {
		t.Fatalf("participant history: %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		in   SendInput
	}{
		{"empty body", SendInput{}},
		{"oversized body", SendInput{Body: strings.Repeat("x", model.MaxBodyLength+1)}},
		{"unknown type", SendInput{Body: "hi", Type: "video"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), shopperA, storeS, tc.in)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("got %v, want ValidationError", err)
			}
		})
	}

	if _, err := f.svc.Send(context.Background(), shopperA, "no-such-store", SendInput{Body: "hi"}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown store: got %v, want NotFoundError", err)
	}
}

func TestSendAttachmentOnly(t *testing.T) {
	f := newFixture(t)

	msg := mustSend(t, f, shopperA, storeS, SendInput{
		Type:        model.TypeImage,
		Attachments: []string{"https://cdn.example.com/u/123.jpg"},
	})
	if msg.Type != model.TypeImage || len(msg.Attachments) != 1 {
		t.Fatalf("attachment message = %+v", msg)
	}
}

func TestDeliveredFlagIsAdvisory(t *testing.T) {
	f := newFixture(t)

	// No live session in the room: stays undelivered.
	msg := mustSend(t, f, shopperA, storeS, SendInput{Body: "offline"})
	if msg.Delivered {
		t.Fatal("message should not be delivered with no live sessions")
	}
	if len(f.bcast.receipts) != 0 {
		t.Fatalf("no delivered receipt expected, got %d", len(f.bcast.receipts))
	}

	f.bcast.delivered = 1
	msg = mustSend(t, f, shopperA, storeS, SendInput{Body: "online"})
	if !msg.Delivered || msg.DeliveredAt == nil {
		t.Fatalf("message should carry the advisory delivered flag, got %+v", msg)
	}
	if len(f.bcast.receipts) != 1 || f.bcast.receipts[0].MessageID != msg.MessageID {
		t.Fatalf("sender should get one delivered receipt, got %d", len(f.bcast.receipts))
	}

	stored, err := f.messages.GetByID(context.Background(), msg.MessageID)
	if err != nil || !stored.Delivered {
		t.Fatalf("delivered flag not persisted: %+v, %v", stored, err)
	}
}

func TestSendFetchRoundTrip(t *testing.T) {
	f := newFixture(t)
	msg := mustSend(t, f, shopperA, storeS, SendInput{Body: "exactly once"})

	msgs, err := f.svc.History(context.Background(), ownerB, storeS, 1, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}

	count := 0
	for _, m := range msgs {
		if m.MessageID == msg.MessageID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("message appears %d times in history, want exactly 1", count)
	}
}

func TestConversationsOrderingAndCache(t *testing.T) {
	f := newFixture(t)
	storeT := "store-t"
	ownerD := "user-d"
	f.svc.(*chatService).stores = &fakeStores{owners: map[string]string{storeS: ownerB, storeT: ownerD}}

	mustSend(t, f, shopperA, storeS, SendInput{Body: "older"})
	mustSend(t, f, shopperA, storeT, SendInput{Body: "newer"})

	list, err := f.svc.Conversations(context.Background(), shopperA)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("conversation count = %d, want 2", len(list))
	}
	if list[0].StoreID != storeT || list[1].StoreID != storeS {
		t.Fatalf("conversations not sorted by last activity: %s, %s", list[0].StoreID, list[1].StoreID)
	}

	// Second listing is served from the cache.
	if _, err := f.svc.Conversations(context.Background(), shopperA); err != nil {
		t.Fatalf("Conversations (cached): %v", err)
	}
	if f.cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", f.cache.hits)
	}

	// A new message invalidates the cached list.
	mustSend(t, f, shopperA, storeS, SendInput{Body: "invalidates"})
	list, err = f.svc.Conversations(context.Background(), shopperA)
	if err != nil {
		t.Fatalf("Conversations (after send): %v", err)
	}
	if list[0].StoreID != storeS {
		t.Fatalf("stale list after invalidation: first = %s, want %s", list[0].StoreID, storeS)
	}
}
