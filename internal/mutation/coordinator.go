// Package mutation applies local writes to the cache optimistically and
// reconciles them with the server's answer.
package mutation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Remote is the part of the server API the coordinator writes through.
type Remote interface {
	SendMessage(ctx context.Context, conversationID, text string) (model.Message, error)
	CreateConversation(ctx context.Context, name string, recipientIDs []string) (model.Conversation, error)
}

type sendInput struct {
	ConversationID string `validate:"required"`
	SenderID       string `validate:"required"`
	Text           string `validate:"required"`
}

type createInput struct {
	Name         string   `validate:"max=100"`
	RecipientIDs []string `validate:"required,min=1,unique,dive,required"`
}

// Coordinator runs sends and conversation creation against the server and
// keeps the cache in step with them.
type Coordinator struct {
	cache     *cache.Cache
	remote    Remote
	bus       *bus.Bus
	logger    *zap.Logger
	userID    string
	tolerance time.Duration
	clock     func() time.Time
	validate  *validator.Validate

	wg sync.WaitGroup
}

// Config holds the coordinator's settings.
type Config struct {
	// UserID is the local user, used as sender of placeholders. Sends fail
	// without it.
	UserID string
	// Tolerance is how far a pushed message's timestamp may be from a
	// placeholder's and still replace it.
	Tolerance time.Duration
	Clock     func() time.Time
}

// New creates a coordinator writing to c through remote.
func New(c *cache.Cache, remote Remote, b *bus.Bus, logger *zap.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = cache.DefaultPlaceholderTolerance
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Coordinator{
		cache:     c,
		remote:    remote,
		bus:       b,
		logger:    logger,
		userID:    cfg.UserID,
		tolerance: cfg.Tolerance,
		clock:     cfg.Clock,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Send shows text in the conversation at once as a placeholder and sends it
// in the background. The placeholder is replaced by the server's message
// on success and removed on failure. Invalid input returns an error
// wrapping transport.ErrInvalid and touches nothing.
//
// The send is not cancelled with ctx: only values are taken from it.
func (c *Coordinator) Send(ctx context.Context, conversationID, text string) (*Pending, error) {
	in := sendInput{ConversationID: conversationID, SenderID: c.userID, Text: strings.TrimSpace(text)}
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrInvalid, err)
	}

	ph := model.Message{
		ID:             model.NewPlaceholderID(),
		ConversationID: conversationID,
		SenderID:       c.userID,
		Text:           in.Text,
		Timestamp:      c.clock().UnixMilli(),
	}
	key := cache.MessagesKey(conversationID)
	c.cache.Messages.Merge(key, []model.Message{ph}, cache.MergeMessages(c.tolerance))
	c.publish(bus.MessagePending, bus.SendResult{ConversationID: conversationID, PlaceholderID: ph.ID})

	p := newPending(ph)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliver(context.WithoutCancel(ctx), p)
	}()
	return p, nil
}

func (c *Coordinator) deliver(ctx context.Context, p *Pending) {
	ph := p.Placeholder
	key := cache.MessagesKey(ph.ConversationID)

	msg, err := c.remote.SendMessage(ctx, ph.ConversationID, ph.Text)
	if err != nil {
		c.cache.Messages.Merge(key, nil, cache.RemoveMessage(ph.ID))
		c.logger.Error("failed to send message",
			zap.Error(err),
			zap.String("conversation_id", ph.ConversationID),
			zap.String("placeholder_id", ph.ID),
		)
		c.publish(bus.MessageSendFailed, bus.SendResult{ConversationID: ph.ConversationID, PlaceholderID: ph.ID, Err: err})
		p.finish(model.Message{}, err)
		return
	}

	if msg.ConversationID == "" {
		msg.ConversationID = ph.ConversationID
	}
	if msg.SenderID == "" {
		msg.SenderID = ph.SenderID
	}
	c.cache.Messages.Merge(key, []model.Message{msg}, cache.SupersedePlaceholder(ph.ID, c.tolerance))
	c.cache.RecordLastMessage(msg)

	c.logger.Info("message sent",
		zap.String("conversation_id", ph.ConversationID),
		zap.String("placeholder_id", ph.ID),
		zap.String("message_id", msg.ID),
	)
	c.publish(bus.MessageSendAck, bus.SendResult{ConversationID: ph.ConversationID, PlaceholderID: ph.ID, MessageID: msg.ID})
	p.finish(msg, nil)
}

// CreateConversation creates a conversation with recipientIDs and caches
// the result. The name is optional. Errors, including
// transport.ErrConflict, leave the cache untouched.
func (c *Coordinator) CreateConversation(ctx context.Context, name string, recipientIDs []string) (model.Conversation, error) {
	in := createInput{Name: strings.TrimSpace(name), RecipientIDs: recipientIDs}
	if err := c.validate.Struct(in); err != nil {
		return model.Conversation{}, fmt.Errorf("%w: %v", transport.ErrInvalid, err)
	}

	conv, err := c.remote.CreateConversation(ctx, in.Name, recipientIDs)
	if err != nil {
		c.logger.Warn("failed to create conversation", zap.Error(err), zap.Strings("recipient_ids", recipientIDs))
		return model.Conversation{}, err
	}
	if conv.ID == "" {
		return model.Conversation{}, fmt.Errorf("create conversation: server returned no id")
	}
	if len(conv.RecipientIDs) == 0 {
		conv.RecipientIDs = recipientIDs
	}
	if conv.Name == "" {
		conv.Name = in.Name
	}

	c.cache.PutConversation(conv)
	c.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	c.publish(bus.ConversationCreated, conv)
	return conv, nil
}

// Wait blocks until every send started so far has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: c.clock(), Payload: payload})
}
