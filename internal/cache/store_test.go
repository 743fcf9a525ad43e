package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetAbsent(t *testing.T) {
	s := NewStore[model.User]("users", nil)
	e := s.Get(UserKey("u1"))
	require.Equal(t, StatusAbsent, e.Status)
	require.False(t, e.HasValue)
	require.Equal(t, UserKey("u1"), e.Key)
}

func TestMergeCreatesPartialEntry(t *testing.T) {
	clock := newFakeClock()
	s := NewStore[model.User]("users", clock.Now)

	e := s.Merge(UserKey("u1"), model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.Equal(t, StatusReady, e.Status)
	require.True(t, e.HasValue)
	require.False(t, e.Fetched)
	require.Equal(t, clock.Now(), e.UpdatedAt)
	require.Equal(t, "Ana", s.Get(UserKey("u1")).Value.DisplayName)
}

func TestMergeNoopDoesNotNotify(t *testing.T) {
	clock := newFakeClock()
	s := NewStore[model.User]("users", clock.Now)
	key := UserKey("u1")
	s.Merge(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)

	var calls int
	s.Subscribe(key, func(Entry[model.User]) { calls++ })

	before := s.Get(key)
	clock.Advance(time.Minute)
	after := s.Merge(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.Equal(t, 0, calls)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestRemoveOnAbsentKeyCreatesNothing(t *testing.T) {
	s := NewStore[[]model.Message]("messages", nil)
	e := s.Merge(MessagesKey("c1"), nil, RemoveMessage("temp:x"))
	require.Equal(t, StatusAbsent, e.Status)
	require.Empty(t, s.Keys())
}

func TestResolveMarksFetched(t *testing.T) {
	s := NewStore[model.User]("users", nil)
	key := UserKey("u1")
	s.MarkLoading(key)
	require.Equal(t, StatusLoading, s.Get(key).Status)

	e := s.Resolve(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.Equal(t, StatusReady, e.Status)
	require.True(t, e.Fetched)
	require.False(t, e.Stale)
}

func TestMarkFailedKeepsValue(t *testing.T) {
	s := NewStore[model.User]("users", nil)
	key := UserKey("u1")
	s.Resolve(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)

	boom := errors.New("boom")
	e := s.MarkFailed(key, boom)
	require.Equal(t, StatusError, e.Status)
	require.ErrorIs(t, e.Err, boom)
	require.Equal(t, "Ana", e.Value.DisplayName)

	e = s.Merge(key, model.User{ID: "u1", DisplayName: "Bea"}, MergeUser)
	require.Equal(t, StatusReady, e.Status)
	require.NoError(t, e.Err)
}

func TestInvalidatedEntryStaysStaleUntilFetched(t *testing.T) {
	s := NewStore[model.User]("users", nil)
	key := UserKey("u1")
	require.Equal(t, StatusAbsent, s.Invalidate(key).Status)

	s.Resolve(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.True(t, s.Invalidate(key).Stale)
	require.Empty(t, s.InvalidateAll())

	// Pushes, changed or not, do not cover what was missed before them.
	e := s.Merge(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.True(t, e.Stale)
	e = s.Merge(key, model.User{ID: "u1", DisplayName: "Bea"}, MergeUser)
	require.True(t, e.Stale)
	require.Equal(t, "Bea", e.Value.DisplayName)

	e = s.Resolve(key, model.User{ID: "u1", DisplayName: "Bea"}, MergeUser)
	require.False(t, e.Stale)
	require.True(t, e.Fetched)
}

func TestSubscribeOrderAndUnsubscribe(t *testing.T) {
	s := NewStore[model.User]("users", nil)
	key := UserKey("u1")

	var got []string
	unsubA := s.Subscribe(key, func(Entry[model.User]) { got = append(got, "a") })
	s.Subscribe(key, func(Entry[model.User]) { got = append(got, "b") })
	s.SubscribeAll(func(Entry[model.User]) { got = append(got, "*") })
	require.Equal(t, 2, s.Observers(key))

	s.Merge(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.Equal(t, []string{"a", "b", "*"}, got)

	unsubA()
	unsubA()
	got = nil
	s.Merge(key, model.User{ID: "u1", DisplayName: "Bea"}, MergeUser)
	require.Equal(t, []string{"b", "*"}, got)

	s.Close()
	got = nil
	s.Merge(key, model.User{ID: "u1", DisplayName: "Cid"}, MergeUser)
	require.Empty(t, got)
	require.Equal(t, "Cid", s.Get(key).Value.DisplayName)
}

func TestObserverMayReadStore(t *testing.T) {
	s := NewStore[model.User]("users", nil)
	key := UserKey("u1")
	var seen string
	s.Subscribe(key, func(e Entry[model.User]) {
		seen = s.Get(e.Key).Value.DisplayName
	})
	s.Merge(key, model.User{ID: "u1", DisplayName: "Ana"}, MergeUser)
	require.Equal(t, "Ana", seen)
}

func TestConcurrentMergesSerialize(t *testing.T) {
	s := NewStore[[]model.Message]("messages", nil)
	key := MessagesKey("c1")
	merge := MergeMessages(DefaultPlaceholderTolerance)

	var mu sync.Mutex
	var lens []int
	s.Subscribe(key, func(e Entry[[]model.Message]) {
		mu.Lock()
		lens = append(lens, len(e.Value))
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := model.Message{ID: string(rune('A' + i)), ConversationID: "c1", SenderID: "u1", Timestamp: int64(i)}
			s.Merge(key, []model.Message{m}, merge)
		}()
	}
	wg.Wait()

	require.Len(t, s.Get(key).Value, 50)
	require.Len(t, lens, 50)
	for i := 1; i < len(lens); i++ {
		require.Equal(t, lens[i-1]+1, lens[i], "observers must see snapshots in apply order")
	}
}

func TestCacheInvalidateLists(t *testing.T) {
	c := New(nil)
	c.Conversations.Resolve(ConversationsKey(), []model.Conversation{{ID: "c1"}}, MergeConversationList)
	c.Messages.Resolve(MessagesKey("c1"), []model.Message{{ID: "m1", ConversationID: "c1"}}, MergeMessages(time.Second))
	c.Users.Resolve(UserKey("u1"), model.User{ID: "u1"}, MergeUser)

	keys := c.InvalidateLists()
	require.ElementsMatch(t, []Key{ConversationsKey(), MessagesKey("c1")}, keys)
	require.False(t, c.Users.Get(UserKey("u1")).Stale)
	c.Close()
}

func TestRecordLastMessage(t *testing.T) {
	c := New(nil)
	c.Conversations.Resolve(ConversationsKey(), []model.Conversation{
		{ID: "c1", RecipientIDs: []string{"a"}, LastMessageTimestamp: 100, LastMessagePreview: "old"},
		{ID: "c2", LastMessageTimestamp: 150},
	}, MergeConversationList)

	c.RecordLastMessage(model.Message{ID: "m9", ConversationID: "c1", SenderID: "a", Text: "new", Timestamp: 200})
	list := c.Conversations.Get(ConversationsKey())
	require.True(t, list.Fetched)
	require.Equal(t, "c1", list.Value[0].ID)
	require.Equal(t, "new", list.Value[0].LastMessagePreview)
	require.Equal(t, []string{"a"}, list.Value[0].RecipientIDs)
	require.Equal(t, int64(200), c.Conversation.Get(ConversationKey("c1")).Value.LastMessageTimestamp)

	c.RecordLastMessage(model.Message{ID: "m1", ConversationID: "c1", SenderID: "b", Text: "older", Timestamp: 50})
	require.Equal(t, "new", c.Conversations.Get(ConversationsKey()).Value[0].LastMessagePreview)
	require.Equal(t, "new", c.Conversation.Get(ConversationKey("c1")).Value.LastMessagePreview)
}

func TestAddParticipants(t *testing.T) {
	c := New(nil)
	c.Conversations.Resolve(ConversationsKey(), []model.Conversation{
		{ID: "c1", RecipientIDs: []string{"a"}, LastMessageTimestamp: 100},
		{ID: "c2", RecipientIDs: []string{"b"}, LastMessageTimestamp: 50},
	}, MergeConversationList)

	require.True(t, c.AddParticipants("c1", []string{"b", "a"}))
	list := c.Conversations.Get(ConversationsKey()).Value
	require.Equal(t, []string{"a", "b"}, list[0].RecipientIDs)
	require.Equal(t, []string{"b"}, list[1].RecipientIDs)
	// Only the list knew c1, so its own key stays absent.
	require.False(t, c.Conversation.Get(ConversationKey("c1")).HasValue)

	var notified int
	c.Conversations.Subscribe(ConversationsKey(), func(Entry[[]model.Conversation]) { notified++ })
	require.True(t, c.AddParticipants("c1", []string{"b"}))
	require.Zero(t, notified)

	require.False(t, c.AddParticipants("c9", []string{"x"}))
	require.Len(t, c.Conversations.Get(ConversationsKey()).Value, 2)
	c.Close()
}
