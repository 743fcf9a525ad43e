package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	ErrAttached = errors.New("push channel already attached")
	ErrClosed   = errors.New("reconciler closed")
)

// Reconciler merges push events into the cache and keeps the push link
// subscribed across channel resets.
type Reconciler struct {
	cache     *cache.Cache
	bus       *bus.Bus
	link      *status.Machine
	logger    *zap.Logger
	validate  *validator.Validate
	tolerance time.Duration
	events    metric.Int64Counter

	mu      sync.Mutex
	channel transport.PushChannel
	unsubs  []func()
	unreset func()
}

// New creates a reconciler for c. Link changes are published on b.
func New(c *cache.Cache, b *bus.Bus, logger *zap.Logger, tolerance time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance <= 0 {
		tolerance = cache.DefaultPlaceholderTolerance
	}
	// The global meter provider never fails to create instruments.
	events, _ := otel.Meter("github.com/matheus3301/chatsync/internal/push").Int64Counter(
		"chatsync_push_events_total",
		metric.WithDescription("Push events received, by kind and result"),
	)
	return &Reconciler{
		cache:     c,
		bus:       b,
		link:      status.NewMachine(b),
		logger:    logger,
		validate:  NewValidator(),
		tolerance: tolerance,
		events:    events,
	}
}

// Link returns the push link state.
func (r *Reconciler) Link() status.State { return r.link.Current() }

// Attach subscribes to every event kind on ch and to its resets. A session
// attaches once; the subscription ends with Close or when ctx is done.
func (r *Reconciler) Attach(ctx context.Context, ch transport.PushChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.link.Current() {
	case status.Closed:
		return ErrClosed
	case status.Detached:
	default:
		return ErrAttached
	}

	r.channel = ch
	r.subscribeLocked()
	r.unreset = ch.OnReset(r.Reset)
	if err := r.link.Transition(status.Attached); err != nil {
		return err
	}
	context.AfterFunc(ctx, r.Close)
	r.logger.Info("push channel attached")
	return nil
}

func (r *Reconciler) subscribeLocked() {
	for _, kind := range Kinds {
		r.unsubs = append(r.unsubs, r.channel.Subscribe(string(kind), func(raw []byte) {
			r.handle(kind, raw)
		}))
	}
}

func (r *Reconciler) unsubscribeLocked() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Reconciler) handle(kind Kind, raw []byte) {
	evt, err := Decode(r.validate, kind, raw)
	if err != nil {
		r.count(kind, "rejected")
		r.logger.Warn("dropping invalid push event", zap.String("kind", string(kind)), zap.Error(err))
		if r.bus != nil {
			r.bus.Publish(bus.Event{Kind: bus.PushRejected, Payload: err})
		}
		return
	}
	r.OnEvent(evt)
}

// OnEvent merges one decoded event into the cache.
func (r *Reconciler) OnEvent(evt Event) {
	switch e := evt.(type) {
	case *ConversationAdded:
		r.cache.PutConversation(e.Conversation)
	case *ConversationUpdated:
		r.cache.PutConversation(e.Conversation)
	case *MessageAdded:
		m := e.Message
		if m.ConversationID == "" {
			m.ConversationID = e.ConversationID
		}
		r.cache.Messages.Merge(cache.MessagesKey(m.ConversationID), []model.Message{m}, cache.MergeMessages(r.tolerance))
		r.cache.RecordLastMessage(m)
	case *ParticipantAdded:
		if !r.cache.AddParticipants(e.ConversationID, e.ParticipantIDs) {
			// Nothing cached to extend; the next list fetch brings it in.
			r.cache.Conversations.Invalidate(cache.ConversationsKey())
		}
	case *Sync:
		for _, conv := range e.Conversations {
			r.cache.PutConversation(conv)
		}
		for id, msgs := range lo.GroupBy(e.Messages, func(m model.Message) string { return m.ConversationID }) {
			r.cache.Messages.Merge(cache.MessagesKey(id), msgs, cache.MergeMessages(r.tolerance))
			r.cache.RecordLastMessage(lo.MaxBy(msgs, func(a, b model.Message) bool { return a.Timestamp > b.Timestamp }))
		}
	default:
		r.logger.Warn("unhandled push event", zap.Any("event", evt))
		return
	}
	r.count(evt.Kind(), "applied")
	r.logger.Debug("push event applied", zap.String("kind", string(evt.Kind())))
}

// Reset handles a channel reconnect. Events sent while the channel was down
// are lost, so the reconciler subscribes again and marks the conversation
// list and every message list stale. Pushes merged afterwards keep them
// stale; the next ensure refetches them.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.link.Current() != status.Attached {
		return
	}
	if err := r.link.Transition(status.Resetting); err != nil {
		r.logger.Error("push reset", zap.Error(err))
		return
	}

	r.unsubscribeLocked()
	r.subscribeLocked()
	keys := r.cache.InvalidateLists()

	if r.bus != nil {
		r.bus.Publish(bus.Event{Kind: bus.PushReset, Payload: keys})
	}
	r.logger.Info("push channel reset", zap.Int("invalidated", len(keys)))

	if err := r.link.Transition(status.Attached); err != nil {
		r.logger.Error("push reset", zap.Error(err))
	}
}

// Close drops the subscriptions. It is safe to call more than once.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.link.Current() == status.Closed {
		return
	}
	r.unsubscribeLocked()
	if r.unreset != nil {
		r.unreset()
		r.unreset = nil
	}
	_ = r.link.Transition(status.Closed)
	r.logger.Info("push reconciler closed")
}

func (r *Reconciler) count(kind Kind, result string) {
	r.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("result", result),
	))
}
