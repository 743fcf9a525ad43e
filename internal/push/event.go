// Package push applies server push events to the cache.
package push

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/chatsync/internal/model"
)

// Kind names a push event type. It is the frame type on the wire.
type Kind string

const (
	KindConversationAdded   Kind = "conversation-added"
	KindConversationUpdated Kind = "conversation-updated"
	KindMessageAdded        Kind = "message-added"
	KindParticipantAdded    Kind = "participant-added"
	// KindSync carries what the server queued for the client while it was
	// offline. The server sends it right after a connect.
	KindSync Kind = "sync"
)

// Kinds lists every event kind the reconciler subscribes to.
var Kinds = []Kind{KindConversationAdded, KindConversationUpdated, KindMessageAdded, KindParticipantAdded, KindSync}

// Event is one decoded push event: *ConversationAdded,
// *ConversationUpdated, *MessageAdded, *ParticipantAdded or *Sync.
type Event interface {
	Kind() Kind
}

type ConversationAdded struct {
	Conversation model.Conversation `json:"conversation" validate:"required"`
}

type ConversationUpdated struct {
	Conversation model.Conversation `json:"conversation" validate:"required"`
}

type MessageAdded struct {
	ConversationID string        `json:"conversationId" validate:"required"`
	Message        model.Message `json:"message" validate:"required"`
}

type ParticipantAdded struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,unique,dive,required"`
}

// Sync is a batch of conversations and messages. Every message names its
// conversation.
type Sync struct {
	Conversations []model.Conversation `json:"conversations" validate:"dive"`
	Messages      []model.Message      `json:"messages" validate:"dive"`
}

func (*ConversationAdded) Kind() Kind   { return KindConversationAdded }
func (*ConversationUpdated) Kind() Kind { return KindConversationUpdated }
func (*MessageAdded) Kind() Kind        { return KindMessageAdded }
func (*ParticipantAdded) Kind() Kind    { return KindParticipantAdded }
func (*Sync) Kind() Kind                { return KindSync }

// NewValidator returns a validator that knows the model's rules.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidationMapRules(map[string]string{
		"ID":                   "required",
		"RecipientIDs":         "omitempty,unique,dive,required",
		"LastMessageTimestamp": "gte=0",
	}, model.Conversation{})
	v.RegisterStructValidationMapRules(map[string]string{
		"ID":        "required,startsnotwith=" + model.PlaceholderPrefix,
		"SenderID":  "required",
		"Timestamp": "gte=0",
	}, model.Message{})
	return v
}

// Decode parses and validates the payload of an event of kind.
func Decode(v *validator.Validate, kind Kind, raw []byte) (Event, error) {
	var evt Event
	switch kind {
	case KindConversationAdded:
		evt = new(ConversationAdded)
	case KindConversationUpdated:
		evt = new(ConversationUpdated)
	case KindMessageAdded:
		evt = new(MessageAdded)
	case KindParticipantAdded:
		evt = new(ParticipantAdded)
	case KindSync:
		evt = new(Sync)
	default:
		return nil, fmt.Errorf("unknown push event kind %q", kind)
	}
	if err := json.Unmarshal(raw, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := v.Struct(evt); err != nil {
		return nil, fmt.Errorf("validate %s: %w", kind, err)
	}
	switch e := evt.(type) {
	case *MessageAdded:
		switch e.Message.ConversationID {
		case "":
			e.Message.ConversationID = e.ConversationID
		case e.ConversationID:
		default:
			return nil, fmt.Errorf("validate %s: message belongs to %s, not %s", kind, e.Message.ConversationID, e.ConversationID)
		}
	case *Sync:
		for _, m := range e.Messages {
			if m.ConversationID == "" {
				return nil, fmt.Errorf("validate %s: message %s has no conversation", kind, m.ID)
			}
		}
	}
	return evt, nil
}
