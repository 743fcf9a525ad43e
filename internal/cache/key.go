package cache

import (
	"fmt"
	"strings"
)

// Kind identifies which entity collection a key addresses.
type Kind string

const (
	KindConversations Kind = "conversations"
	KindConversation  Kind = "conversation"
	KindMessages      Kind = "messages"
	KindUser          Kind = "user"
)

// Key addresses one cached entity or entity collection, e.g. "messages:c1".
type Key string

// ConversationsKey addresses the list of all conversations.
func ConversationsKey() Key { return Key(KindConversations) }

// ConversationKey addresses a single conversation.
func ConversationKey(id string) Key { return compose(KindConversation, id) }

// MessagesKey addresses the message list of a conversation.
func MessagesKey(conversationID string) Key { return compose(KindMessages, conversationID) }

// UserKey addresses a user profile.
func UserKey(id string) Key { return compose(KindUser, id) }

func compose(kind Kind, id string) Key {
	return Key(string(kind) + ":" + id)
}

// Kind returns the collection part of the key.
func (k Key) Kind() Kind {
	kind, _, _ := strings.Cut(string(k), ":")
	return Kind(kind)
}

// ID returns the entity identifier part of the key, or "" for collection keys.
func (k Key) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

func (k Key) String() string { return string(k) }

// ParseKey validates s and returns it as a Key.
func ParseKey(s string) (Key, error) {
	kind, id, hasID := strings.Cut(s, ":")
	switch Kind(kind) {
	case KindConversations:
		if hasID {
			return "", fmt.Errorf("key %q: conversations key takes no id", s)
		}
	case KindConversation, KindMessages, KindUser:
		if id == "" {
			return "", fmt.Errorf("key %q: missing id", s)
		}
	default:
		return "", fmt.Errorf("key %q: unknown kind %q", s, kind)
	}
	return Key(s), nil
}
