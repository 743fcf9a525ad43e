package api

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
	"github.com/matheus3301/chatsync/internal/mutation"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeClient answers every call from canned data and counts fetches.
type fakeClient struct {
	mu    sync.Mutex
	convs []model.Conversation
	msgs  map[string][]model.Message
	users map[string]model.User

	convFetches atomic.Int32
	msgFetches  atomic.Int32
	userFetches atomic.Int32
}

func (f *fakeClient) FetchConversations(context.Context) ([]model.Conversation, error) {
	f.convFetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Conversation(nil), f.convs...), nil
}

func (f *fakeClient) FetchMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	f.msgFetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.msgs[conversationID]...), nil
}

func (f *fakeClient) FetchUser(_ context.Context, userID string) (model.User, error) {
	f.userFetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return model.User{}, &transport.StatusError{Code: 404, Message: "no such user"}
	}
	return u, nil
}

func (f *fakeClient) SendMessage(_ context.Context, conversationID, text string) (model.Message, error) {
	return model.Message{
		ID:             "srv-1",
		ConversationID: conversationID,
		SenderID:       "me",
		Text:           text,
		Timestamp:      time.Now().UnixMilli(),
	}, nil
}

func (f *fakeClient) CreateConversation(_ context.Context, name string, recipientIDs []string) (model.Conversation, error) {
	return model.Conversation{ID: "new", Name: name, RecipientIDs: recipientIDs}, nil
}

type fixture struct {
	client   *fakeClient
	cache    *cache.Cache
	bus      *bus.Bus
	chats    *ChatService
	messages *MessageService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client: &fakeClient{
			convs: []model.Conversation{
				{ID: "c1", RecipientIDs: []string{"me", "u2"}, LastMessageTimestamp: 10},
				{ID: "c2", RecipientIDs: []string{"me", "u3"}, LastMessageTimestamp: 20},
			},
			msgs: map[string][]model.Message{
				"c1": {{ID: "m1", ConversationID: "c1", SenderID: "u2", Text: "hi", Timestamp: 10}},
			},
			users: map[string]model.User{"u2": {ID: "u2", DisplayName: "Ada"}},
		},
		cache: cache.New(nil),
		bus:   bus.New(),
	}
	t.Cleanup(f.bus.Close)

	coord := mutation.New(f.cache, f.client, f.bus, nil, mutation.Config{UserID: "me"})
	list := fetch.New(f.cache.Conversations, freshness.NeverStale{}, cache.MergeConversationList)
	convs := fetch.New(f.cache.Conversation, freshness.NeverStale{}, cache.MergeConversation)
	msgs := fetch.New(f.cache.Messages, freshness.NeverStale{}, cache.MergeMessages(cache.DefaultPlaceholderTolerance))
	users := fetch.New(f.cache.Users, freshness.ShortLived{TTL: time.Minute}, cache.MergeUser)

	f.chats = NewChatService(f.cache, list, convs, f.client, coord, f.bus)
	f.messages = NewMessageService(f.cache, msgs, f.client, coord, f.bus)
	f.users = NewUserService(f.cache, users, f.client)
	return f
}

func TestEnsureConversationsPopulatesSingleEntries(t *testing.T) {
	f := newFixture(t)

	list, err := f.chats.EnsureConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Value, 2)
	require.Equal(t, "c2", list.Value[0].ID)

	c1 := f.chats.Conversation("c1")
	require.True(t, c1.HasValue)
	require.True(t, c1.Fetched)

	_, err = f.chats.EnsureConversations(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, f.client.convFetches.Load())
}

func TestEnsureConversationUsesList(t *testing.T) {
	f := newFixture(t)

	e, err := f.chats.EnsureConversation(context.Background(), "c2")
	require.NoError(t, err)
	require.Equal(t, []string{"me", "u3"}, e.Value.RecipientIDs)

	_, err = f.chats.EnsureConversation(context.Background(), "missing")
	require.ErrorIs(t, err, transport.ErrNotFound)
	require.EqualValues(t, 1, f.client.convFetches.Load())
}

func TestSubscribeConversationsSeesCreate(t *testing.T) {
	f := newFixture(t)

	var snapshots [][]model.Conversation
	unsub := f.chats.SubscribeConversations(func(e cache.Entry[[]model.Conversation]) {
		snapshots = append(snapshots, e.Value)
	})
	defer unsub()

	conv, err := f.chats.CreateConversation(context.Background(), "pair", []string{"u9"})
	require.NoError(t, err)
	require.Equal(t, "new", conv.ID)
	require.Equal(t, "pair", conv.Name)
	require.NotEmpty(t, snapshots)
	require.Equal(t, "new", snapshots[len(snapshots)-1][0].ID)
}

func TestMessagesEnsureAndSend(t *testing.T) {
	f := newFixture(t)

	e, err := f.messages.EnsureMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, e.Value, 1)

	p, err := f.messages.Send(context.Background(), "c1", "  hello  ")
	require.NoError(t, err)
	msg, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "srv-1", msg.ID)

	got := f.messages.Messages("c1").Value
	require.Len(t, got, 2)
	require.Equal(t, "srv-1", got[1].ID)
	require.Equal(t, "hello", got[1].Text)
	require.EqualValues(t, 1, f.client.msgFetches.Load())
}

func TestWatchEventsForwardsNamespace(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan bus.Event, 8)
	done := make(chan error, 1)
	go func() { done <- f.messages.WatchEvents(ctx, func(evt bus.Event) { got <- evt }) }()

	require.Eventually(t, func() bool {
		f.bus.Publish(bus.Event{Kind: bus.MessagePending})
		select {
		case evt := <-got:
			return evt.Kind == bus.MessagePending
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, "u2", f.users.DisplayName("u2"))
	require.Eventually(t, func() bool { return f.users.DisplayName("u2") == "Ada" },
		time.Second, time.Millisecond)

	_, err := f.users.EnsureUser(context.Background(), "ghost")
	require.ErrorIs(t, err, transport.ErrNotFound)
	require.Equal(t, "ghost", f.users.DisplayName("ghost"))
	require.Equal(t, "ghost", f.users.DisplayName("ghost"))
	require.EqualValues(t, 2, f.client.userFetches.Load())
}

type fixedLink status.State

func (l fixedLink) Link() status.State { return status.State(l) }

func TestSessionStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.chats.EnsureConversations(context.Background())
	require.NoError(t, err)

	s := NewSessionService("work", "me", "http://chat", fixedLink(status.Attached), f.cache, f.bus)
	st := s.Status()
	require.Equal(t, "work", st.Profile)
	require.Equal(t, status.Attached, st.Link)
	require.Equal(t, 2, st.Conversations)
	require.GreaterOrEqual(t, st.Uptime, time.Duration(0))
}
