package cache

import (
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// Cache holds the stores of one client session. It is created when the
// session starts and closed when it ends.
type Cache struct {
	Conversations *Store[[]model.Conversation]
	Conversation  *Store[model.Conversation]
	Messages      *Store[[]model.Message]
	Users         *Store[model.User]
}

// New creates an empty cache. A nil clock defaults to time.Now.
func New(clock func() time.Time) *Cache {
	return &Cache{
		Conversations: NewStore[[]model.Conversation]("conversations", clock),
		Conversation:  NewStore[model.Conversation]("conversation", clock),
		Messages:      NewStore[[]model.Message]("messages", clock),
		Users:         NewStore[model.User]("users", clock),
	}
}

// InvalidateLists marks the conversation list and every message list stale.
// It returns the keys that were marked.
func (c *Cache) InvalidateLists() []Key {
	keys := c.Conversations.InvalidateAll()
	return append(keys, c.Messages.InvalidateAll()...)
}

// Close drops every observer of every store.
func (c *Cache) Close() {
	c.Conversations.Close()
	c.Conversation.Close()
	c.Messages.Close()
	c.Users.Close()
}

// PutConversation merges conv into its own key and into the conversation
// list.
func (c *Cache) PutConversation(conv model.Conversation) {
	c.Conversation.Merge(ConversationKey(conv.ID), conv, MergeConversation)
	c.Conversations.Merge(ConversationsKey(), []model.Conversation{conv}, MergeConversationList)
}

// AddParticipants adds ids to the recipients of a conversation. It reports
// false when the cache holds no copy of the conversation to extend.
func (c *Cache) AddParticipants(conversationID string, ids []string) bool {
	one := c.Conversation.Merge(ConversationKey(conversationID), model.Conversation{}, AddRecipients(ids))
	list := c.Conversations.Merge(ConversationsKey(), nil, AddRecipientsToList(conversationID, ids))
	return one.HasValue || slices.ContainsFunc(list.Value, func(conv model.Conversation) bool {
		return conv.ID == conversationID
	})
}

// RecordLastMessage moves the last-message fields of m's conversation
// forward. Older messages leave the conversation unchanged.
func (c *Cache) RecordLastMessage(m model.Message) {
	c.PutConversation(model.Conversation{
		ID:                   m.ConversationID,
		LastMessagePreview:   model.Preview(m.Text),
		LastMessageSenderID:  m.SenderID,
		LastMessageTimestamp: m.Timestamp,
	})
}
