package bus

import "time"

// Event kinds. Subscribers filter by prefix, e.g. "message." or "push.".
const (
	MessagePending      = "message.pending"
	MessageSendAck      = "message.send_ack"
	MessageSendFailed   = "message.send_failed"
	ConversationCreated = "conversation.created"
	PushLinkChanged     = "push.link_changed"
	PushReset           = "push.reset"
	PushRejected        = "push.rejected"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// SendResult is the payload of message.* events. PlaceholderID names the
// optimistic message; MessageID is set once the server acknowledged it.
type SendResult struct {
	ConversationID string
	PlaceholderID  string
	MessageID      string
	Err            error
}
