package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/fetch"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/mutation"
	"github.com/matheus3301/chatsync/internal/transport"
)

// MessageService serves the message lists of conversations and sends
// messages.
type MessageService struct {
	cache  *cache.Cache
	msgs   *fetch.Orchestrator[[]model.Message]
	remote transport.Client
	coord  *mutation.Coordinator
	bus    *bus.Bus
}

// NewMessageService creates a message service over the cache.
func NewMessageService(
	c *cache.Cache,
	msgs *fetch.Orchestrator[[]model.Message],
	remote transport.Client,
	coord *mutation.Coordinator,
	b *bus.Bus,
) *MessageService {
	return &MessageService{cache: c, msgs: msgs, remote: remote, coord: coord, bus: b}
}

// Messages returns the cached messages of a conversation, oldest first.
func (s *MessageService) Messages(conversationID string) cache.Entry[[]model.Message] {
	return s.cache.Messages.Get(cache.MessagesKey(conversationID))
}

// EnsureMessages fetches the messages of a conversation unless they are fresh.
func (s *MessageService) EnsureMessages(ctx context.Context, conversationID string) (cache.Entry[[]model.Message], error) {
	return s.msgs.Ensure(ctx, cache.MessagesKey(conversationID), s.loader(conversationID))
}

// LoadMessages starts fetching the messages of a conversation in the
// background unless they are fresh.
func (s *MessageService) LoadMessages(conversationID string) cache.Status {
	return s.msgs.EnsureAsync(cache.MessagesKey(conversationID), s.loader(conversationID))
}

func (s *MessageService) loader(conversationID string) fetch.Loader[[]model.Message] {
	return func(ctx context.Context) ([]model.Message, error) {
		return s.remote.FetchMessages(ctx, conversationID)
	}
}

// SubscribeMessages calls fn with every new snapshot of a conversation's
// messages.
func (s *MessageService) SubscribeMessages(conversationID string, fn cache.Observer[[]model.Message]) (unsubscribe func()) {
	return s.cache.Messages.Subscribe(cache.MessagesKey(conversationID), fn)
}

// SubscribeAllMessages calls fn with every new snapshot of any
// conversation's messages.
func (s *MessageService) SubscribeAllMessages(fn cache.Observer[[]model.Message]) (unsubscribe func()) {
	return s.cache.Messages.SubscribeAll(fn)
}

// Send sends text to a conversation. The message shows up at once as a
// placeholder; the returned handle reports the outcome.
func (s *MessageService) Send(ctx context.Context, conversationID, text string) (*mutation.Pending, error) {
	return s.coord.Send(ctx, conversationID, text)
}

// WatchEvents calls fn for every message.* bus event until ctx is done.
func (s *MessageService) WatchEvents(ctx context.Context, fn func(bus.Event)) error {
	return watch(ctx, s.bus, "message.", fn)
}
