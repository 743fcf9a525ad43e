package push

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/fetch"
	"github.com/matheus3301/chatsync/internal/freshness"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory transport.PushChannel.
type fakeChannel struct {
	mu         sync.Mutex
	handlers   map[string][]*func([]byte)
	resets     []*func()
	subscribed int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]*func([]byte))}
}

func (f *fakeChannel) Subscribe(eventType string, handler func(raw []byte)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &handler
	f.handlers[eventType] = append(f.handlers[eventType], h)
	f.subscribed++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		hs := f.handlers[eventType]
		for i := range hs {
			if hs[i] == h {
				f.handlers[eventType] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeChannel) OnReset(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fn
	f.resets = append(f.resets, p)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.resets {
			if f.resets[i] == p {
				f.resets = append(f.resets[:i:i], f.resets[i+1:]...)
				return
			}
		}
	}
}

func (f *fakeChannel) emit(kind Kind, raw string) {
	f.mu.Lock()
	hs := append([]*func([]byte){}, f.handlers[string(kind)]...)
	f.mu.Unlock()
	for _, h := range hs {
		(*h)([]byte(raw))
	}
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	rs := append([]*func(){}, f.resets...)
	f.mu.Unlock()
	for _, fn := range rs {
		(*fn)()
	}
}

func (f *fakeChannel) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func attached(t *testing.T) (*Reconciler, *cache.Cache, *fakeChannel, *bus.Bus) {
	t.Helper()
	c := cache.New(nil)
	b := bus.New()
	r := New(c, b, nil, 0)
	ch := newFakeChannel()
	require.NoError(t, r.Attach(context.Background(), ch))
	t.Cleanup(r.Close)
	return r, c, ch, b
}

func messageIDs(c *cache.Cache, conversationID string) []string {
	var ids []string
	for _, m := range c.Messages.Get(cache.MessagesKey(conversationID)).Value {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestAttachSubscribesEveryKind(t *testing.T) {
	r, _, ch, _ := attached(t)
	require.Equal(t, status.Attached, r.Link())
	require.Equal(t, len(Kinds), ch.handlerCount())
	require.ErrorIs(t, r.Attach(context.Background(), ch), ErrAttached)
}

func TestMessageAddedUpdatesListAndConversation(t *testing.T) {
	_, c, ch, _ := attached(t)
	c.Messages.Resolve(cache.MessagesKey("c1"), []model.Message{{ID: "m1", ConversationID: "c1", SenderID: "u1", Text: "hi", Timestamp: 100}}, cache.MergeMessages(time.Second))

	ch.emit(KindMessageAdded, `{"conversationId":"c1","message":{"id":"m2","senderID":"u2","text":"yo","timestamp":50}}`)
	require.Equal(t, []string{"m2", "m1"}, messageIDs(c, "c1"))

	before := c.Messages.Get(cache.MessagesKey("c1"))
	ch.emit(KindMessageAdded, `{"conversationId":"c1","message":{"id":"m1","senderID":"u1","text":"hi","timestamp":100}}`)
	require.Equal(t, before, c.Messages.Get(cache.MessagesKey("c1")))

	ch.emit(KindMessageAdded, `{"conversationId":"c1","message":{"id":"m3","senderID":"u2","text":"latest","timestamp":300}}`)
	conv := c.Conversation.Get(cache.ConversationKey("c1")).Value
	require.Equal(t, int64(300), conv.LastMessageTimestamp)
	require.Equal(t, "latest", conv.LastMessagePreview)
	require.Equal(t, "u2", conv.LastMessageSenderID)

	list := c.Conversations.Get(cache.ConversationsKey())
	require.False(t, list.Fetched)
	require.Len(t, list.Value, 1)
}

func TestConversationEvents(t *testing.T) {
	_, c, ch, _ := attached(t)

	ch.emit(KindConversationAdded, `{"conversation":{"id":"c2","recipientIDs":["a","b"]}}`)
	ch.emit(KindConversationUpdated, `{"conversation":{"id":"c2","name":"crew","lastMessageTimestamp":10,"lastMessagePreview":"p"}}`)
	ch.emit(KindConversationUpdated, `{"conversation":{"id":"c2","lastMessageTimestamp":5,"lastMessagePreview":"stale"}}`)

	conv := c.Conversation.Get(cache.ConversationKey("c2")).Value
	require.Equal(t, "crew", conv.Name)
	require.Equal(t, []string{"a", "b"}, conv.RecipientIDs)
	require.Equal(t, "p", conv.LastMessagePreview)
	require.Equal(t, conv, c.Conversations.Get(cache.ConversationsKey()).Value[0])
}

func TestSyncAppliesBatch(t *testing.T) {
	_, c, ch, _ := attached(t)
	c.Messages.Resolve(cache.MessagesKey("c1"), []model.Message{{ID: "m1", ConversationID: "c1", SenderID: "u1", Text: "hi", Timestamp: 100}}, cache.MergeMessages(time.Second))

	ch.emit(KindSync, `{
		"conversations":[{"id":"c2","name":"crew","recipientIDs":["a","b"]}],
		"messages":[
			{"id":"m3","conversationID":"c1","senderID":"u2","text":"second","timestamp":300},
			{"id":"m2","conversationID":"c1","senderID":"u2","text":"first","timestamp":200},
			{"id":"m9","conversationID":"c2","senderID":"a","text":"welcome","timestamp":250}
		]
	}`)

	require.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(c, "c1"))
	require.Equal(t, []string{"m9"}, messageIDs(c, "c2"))

	c1 := c.Conversation.Get(cache.ConversationKey("c1")).Value
	require.Equal(t, "second", c1.LastMessagePreview)
	require.Equal(t, int64(300), c1.LastMessageTimestamp)

	c2 := c.Conversation.Get(cache.ConversationKey("c2")).Value
	require.Equal(t, "crew", c2.Name)
	require.Equal(t, []string{"a", "b"}, c2.RecipientIDs)
	require.Equal(t, "welcome", c2.LastMessagePreview)

	list := c.Conversations.Get(cache.ConversationsKey()).Value
	require.Equal(t, []string{"c1", "c2"}, []string{list[0].ID, list[1].ID})
}

func TestParticipantAdded(t *testing.T) {
	_, c, ch, _ := attached(t)
	c.Conversations.Resolve(cache.ConversationsKey(), []model.Conversation{{ID: "c1", RecipientIDs: []string{"a"}}}, cache.MergeConversationList)
	c.Conversation.Resolve(cache.ConversationKey("c1"), model.Conversation{ID: "c1", RecipientIDs: []string{"a"}}, cache.MergeConversation)

	ch.emit(KindParticipantAdded, `{"conversationId":"c1","participantIds":["b"]}`)
	require.Equal(t, []string{"a", "b"}, c.Conversation.Get(cache.ConversationKey("c1")).Value.RecipientIDs)
	require.Equal(t, []string{"a", "b"}, c.Conversations.Get(cache.ConversationsKey()).Value[0].RecipientIDs)
	require.False(t, c.Conversations.Get(cache.ConversationsKey()).Stale)

	// An unknown conversation cannot be extended, so the list is refetched.
	ch.emit(KindParticipantAdded, `{"conversationId":"c7","participantIds":["z"]}`)
	require.False(t, c.Conversation.Get(cache.ConversationKey("c7")).HasValue)
	require.True(t, c.Conversations.Get(cache.ConversationsKey()).Stale)
	require.Len(t, c.Conversations.Get(cache.ConversationsKey()).Value, 1)
}

func TestInvalidPayloadIsDropped(t *testing.T) {
	_, c, ch, b := attached(t)
	events, unsub := b.Subscribe(bus.PushRejected, 4)
	defer unsub()

	var notified int
	c.Messages.SubscribeAll(func(cache.Entry[[]model.Message]) { notified++ })
	ch.emit(KindMessageAdded, `{"conversationId":"c1","message":{"id":"temp:1","senderID":"me"}}`)
	ch.emit(KindMessageAdded, `not json`)

	require.Zero(t, notified)
	require.Empty(t, c.Messages.Keys())
	require.Equal(t, bus.PushRejected, (<-events).Kind)
	require.Equal(t, bus.PushRejected, (<-events).Kind)
}

func TestResetInvalidatesListsAndResubscribes(t *testing.T) {
	r, c, ch, b := attached(t)
	events, unsub := b.Subscribe("push.", 8)
	defer unsub()

	c.Conversations.Resolve(cache.ConversationsKey(), []model.Conversation{{ID: "c1"}}, cache.MergeConversationList)
	c.Messages.Resolve(cache.MessagesKey("c1"), []model.Message{{ID: "m1", ConversationID: "c1", SenderID: "u1"}}, cache.MergeMessages(time.Second))
	c.Users.Resolve(cache.UserKey("u1"), model.User{ID: "u1", DisplayName: "Ana"}, cache.MergeUser)

	ch.reset()

	require.Equal(t, status.Attached, r.Link())
	require.Equal(t, len(Kinds), ch.handlerCount())
	require.Equal(t, 2*len(Kinds), ch.subscribed)
	require.True(t, c.Conversations.Get(cache.ConversationsKey()).Stale)
	require.True(t, c.Messages.Get(cache.MessagesKey("c1")).Stale)
	require.False(t, c.Users.Get(cache.UserKey("u1")).Stale)
	require.Len(t, c.Messages.Get(cache.MessagesKey("c1")).Value, 1)

	var kinds []string
	for range 3 {
		kinds = append(kinds, (<-events).Kind)
	}
	require.Equal(t, []string{bus.PushLinkChanged, bus.PushReset, bus.PushLinkChanged}, kinds)

	// Events keep flowing after the reset but do not fill the gap.
	ch.emit(KindMessageAdded, `{"conversationId":"c1","message":{"id":"m2","senderID":"u1","timestamp":5}}`)
	require.True(t, c.Messages.Get(cache.MessagesKey("c1")).Stale)
	require.Len(t, c.Messages.Get(cache.MessagesKey("c1")).Value, 2)
}

func TestPushAfterResetStillRefetches(t *testing.T) {
	_, c, ch, _ := attached(t)
	key := cache.MessagesKey("c1")
	merge := cache.MergeMessages(time.Second)
	msgs := fetch.New(c.Messages, freshness.NeverStale{}, merge)

	var calls atomic.Int32
	load := func(context.Context) ([]model.Message, error) {
		calls.Add(1)
		return []model.Message{
			{ID: "m1", ConversationID: "c1", SenderID: "u1", Timestamp: 1},
			{ID: "m2", ConversationID: "c1", SenderID: "u2", Text: "missed", Timestamp: 2},
			{ID: "m3", ConversationID: "c1", SenderID: "u1", Timestamp: 3},
		}, nil
	}
	c.Messages.Resolve(key, []model.Message{{ID: "m1", ConversationID: "c1", SenderID: "u1", Timestamp: 1}}, merge)
	require.True(t, msgs.Fresh(key))

	ch.reset()
	ch.emit(KindMessageAdded, `{"conversationId":"c1","message":{"id":"m3","senderID":"u1","timestamp":3}}`)
	require.False(t, msgs.Fresh(key))

	e, err := msgs.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(c, "c1"))
	require.False(t, e.Stale)

	_, err = msgs.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestCloseDetachesEverything(t *testing.T) {
	c := cache.New(nil)
	r := New(c, nil, nil, 0)
	ch := newFakeChannel()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Attach(ctx, ch))

	cancel()
	require.Eventually(t, func() bool { return r.Link() == status.Closed }, time.Second, time.Millisecond)
	require.Zero(t, ch.handlerCount())
	require.Empty(t, ch.resets)

	r.Close()
	ch.reset()
	require.Equal(t, status.Closed, r.Link())
	require.ErrorIs(t, r.Attach(context.Background(), ch), ErrClosed)
}
