package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/fetch"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/mutation"
	"github.com/matheus3301/chatsync/internal/transport"
)

// ChatService serves the conversation list and single conversations to the
// presentation layer.
type ChatService struct {
	cache  *cache.Cache
	list   *fetch.Orchestrator[[]model.Conversation]
	convs  *fetch.Orchestrator[model.Conversation]
	remote transport.Client
	coord  *mutation.Coordinator
	bus    *bus.Bus
}

// NewChatService creates a chat service over the cache.
func NewChatService(
	c *cache.Cache,
	list *fetch.Orchestrator[[]model.Conversation],
	convs *fetch.Orchestrator[model.Conversation],
	remote transport.Client,
	coord *mutation.Coordinator,
	b *bus.Bus,
) *ChatService {
	return &ChatService{cache: c, list: list, convs: convs, remote: remote, coord: coord, bus: b}
}

// Conversations returns the cached conversation list, newest first.
func (s *ChatService) Conversations() cache.Entry[[]model.Conversation] {
	return s.cache.Conversations.Get(cache.ConversationsKey())
}

// Conversation returns the cached conversation id.
func (s *ChatService) Conversation(id string) cache.Entry[model.Conversation] {
	return s.cache.Conversation.Get(cache.ConversationKey(id))
}

// EnsureConversations fetches the conversation list unless it is fresh.
func (s *ChatService) EnsureConversations(ctx context.Context) (cache.Entry[[]model.Conversation], error) {
	return s.list.Ensure(ctx, cache.ConversationsKey(), s.loadConversations)
}

// LoadConversations starts fetching the conversation list in the background
// unless it is fresh.
func (s *ChatService) LoadConversations() cache.Status {
	return s.list.EnsureAsync(cache.ConversationsKey(), s.loadConversations)
}

// EnsureConversation returns conversation id, fetching the list if needed.
// The server has no single-conversation endpoint.
func (s *ChatService) EnsureConversation(ctx context.Context, id string) (cache.Entry[model.Conversation], error) {
	return s.convs.Ensure(ctx, cache.ConversationKey(id), func(ctx context.Context) (model.Conversation, error) {
		list, err := s.EnsureConversations(ctx)
		if err != nil {
			return model.Conversation{}, err
		}
		for _, c := range list.Value {
			if c.ID == id {
				return c, nil
			}
		}
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", id, transport.ErrNotFound)
	})
}

func (s *ChatService) loadConversations(ctx context.Context) ([]model.Conversation, error) {
	convs, err := s.remote.FetchConversations(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		s.cache.Conversation.Resolve(cache.ConversationKey(c.ID), c, cache.MergeConversation)
	}
	return convs, nil
}

// SubscribeConversations calls fn with every new snapshot of the list.
func (s *ChatService) SubscribeConversations(fn cache.Observer[[]model.Conversation]) (unsubscribe func()) {
	return s.cache.Conversations.Subscribe(cache.ConversationsKey(), fn)
}

// SubscribeConversation calls fn with every new snapshot of conversation id.
func (s *ChatService) SubscribeConversation(id string, fn cache.Observer[model.Conversation]) (unsubscribe func()) {
	return s.cache.Conversation.Subscribe(cache.ConversationKey(id), fn)
}

// CreateConversation creates a conversation with the given recipients. An
// empty name leaves the conversation unnamed.
func (s *ChatService) CreateConversation(ctx context.Context, name string, recipientIDs []string) (model.Conversation, error) {
	return s.coord.CreateConversation(ctx, name, recipientIDs)
}

// WatchEvents calls fn for every conversation.* bus event until ctx is done.
func (s *ChatService) WatchEvents(ctx context.Context, fn func(bus.Event)) error {
	return watch(ctx, s.bus, "conversation.", fn)
}

// watch forwards bus events under namespace to fn until ctx is done or the
// bus closes.
func watch(ctx context.Context, b *bus.Bus, namespace string, fn func(bus.Event)) error {
	ch, unsub := b.Subscribe(namespace, 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			fn(evt)
		case <-ctx.Done():
			return nil
		}
	}
}
