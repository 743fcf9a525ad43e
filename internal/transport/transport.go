// Package transport defines what the client needs from the chat server:
// request/response calls and an asynchronous push channel.
package transport

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/chatsync/internal/model"
)

// Client performs request/response calls against the server.
type Client interface {
	FetchConversations(ctx context.Context) ([]model.Conversation, error)
	FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	FetchUser(ctx context.Context, userID string) (model.User, error)
	SendMessage(ctx context.Context, conversationID, text string) (model.Message, error)
	CreateConversation(ctx context.Context, name string, recipientIDs []string) (model.Conversation, error)
}

// PushChannel delivers server-initiated events. Handlers receive the raw
// payload of every event of the subscribed type.
type PushChannel interface {
	Subscribe(eventType string, handler func(raw []byte)) (unsubscribe func())
	// OnReset registers fn to run whenever the channel reconnects. Events
	// sent while it was down are not replayed.
	OnReset(fn func()) (unsubscribe func())
}

// FrameAck is the frame type acknowledging receipt of another frame.
const FrameAck = "ack"

// Frame is the envelope of every push channel message.
type Frame struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SendMessageRequest is the body of a send call.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// CreateConversationRequest is the body of a create-conversation call.
type CreateConversationRequest struct {
	Name         string   `json:"name,omitempty"`
	RecipientIDs []string `json:"recipientIds"`
}

// ErrorResponse is the body the server returns with a failed call.
type ErrorResponse struct {
	Message string `json:"message"`
}
