package model

import (
	"slices"

	"github.com/samber/lo"
)

// User is a cached user profile.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Conversation is a cached conversation summary.
type Conversation struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name,omitempty"`
	RecipientIDs         []string `json:"recipientIDs"`
	LastMessagePreview   string   `json:"lastMessagePreview,omitempty"`
	LastMessageSenderID  string   `json:"lastMessageSenderID,omitempty"`
	LastMessageTimestamp int64    `json:"lastMessageTimestamp"` // unix ms, 0 = no messages yet
}

// Equal reports whether two conversations hold the same data.
// Recipients compare as a multiset: order is ignored, repeats are not.
func (c Conversation) Equal(o Conversation) bool {
	if c.ID != o.ID || c.Name != o.Name ||
		c.LastMessagePreview != o.LastMessagePreview ||
		c.LastMessageSenderID != o.LastMessageSenderID ||
		c.LastMessageTimestamp != o.LastMessageTimestamp {
		return false
	}
	return lo.ElementsMatch(c.RecipientIDs, o.RecipientIDs)
}

// Envelope is the encryption metadata attached to a message. It is opaque
// to the cache and carried through unchanged.
type Envelope struct {
	KeyID     uint32 `json:"keyID"`
	Version   uint32 `json:"version"`
	Iteration uint32 `json:"iteration"`
	Signature []byte `json:"signature,omitempty"`
}

// Message is a single message inside a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationID"`
	SenderID       string    `json:"senderID"`
	Text           string    `json:"text"`
	Timestamp      int64     `json:"timestamp"` // unix ms
	Envelope       *Envelope `json:"envelope,omitempty"`
}

// Equal reports whether two messages hold the same data.
func (m Message) Equal(o Message) bool {
	if m.ID != o.ID || m.ConversationID != o.ConversationID || m.SenderID != o.SenderID ||
		m.Text != o.Text || m.Timestamp != o.Timestamp {
		return false
	}
	switch {
	case m.Envelope == nil && o.Envelope == nil:
		return true
	case m.Envelope == nil || o.Envelope == nil:
		return false
	}
	return m.Envelope.KeyID == o.Envelope.KeyID &&
		m.Envelope.Version == o.Envelope.Version &&
		m.Envelope.Iteration == o.Envelope.Iteration &&
		slices.Equal(m.Envelope.Signature, o.Envelope.Signature)
}

// IsPending reports whether m is an optimistic entry not yet acknowledged.
func (m Message) IsPending() bool {
	return IsPlaceholder(m.ID)
}
