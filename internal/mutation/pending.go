package mutation

import (
	"context"

	"github.com/matheus3301/chatsync/internal/model"
)

// Pending is the handle of an in-flight send.
type Pending struct {
	ConversationID string
	// Placeholder is the optimistic message shown until the server answers.
	Placeholder model.Message

	done chan struct{}
	msg  model.Message
	err  error
}

func newPending(placeholder model.Message) *Pending {
	return &Pending{
		ConversationID: placeholder.ConversationID,
		Placeholder:    placeholder,
		done:           make(chan struct{}),
	}
}

func (p *Pending) finish(msg model.Message, err error) {
	p.msg, p.err = msg, err
	close(p.done)
}

// Done is closed once the send succeeded or failed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the send error. It is nil while the send is in flight.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the send finishes or ctx is done and returns the
// server's message.
func (p *Pending) Wait(ctx context.Context) (model.Message, error) {
	select {
	case <-p.done:
		return p.msg, p.err
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	}
}
