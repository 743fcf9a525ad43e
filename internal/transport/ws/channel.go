// Package ws implements transport.PushChannel over a WebSocket connection
// that reconnects on its own.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

const (
	// DefaultMinBackoff and DefaultMaxBackoff bound the delay between
	// reconnect attempts. The delay doubles after each failed attempt.
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second

	// jitter is uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 4

	readLimit  = 1 << 20
	writeWait  = 10 * time.Second
	dialWait   = 30 * time.Second
	streamPath = "/v1/ws"
)

type handler struct {
	id uint64
	fn func(raw []byte)
}

// Channel is a push channel backed by a WebSocket. Run owns the connection;
// Subscribe and OnReset may be called at any time.
type Channel struct {
	url        string
	token      string
	log        *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handler
	resets   []handler

	connected atomic.Bool
	resetN    atomic.Int64
}

// Option configures a Channel.
type Option func(*Channel)

// WithToken sets the bearer token sent on connect.
func WithToken(token string) Option {
	return func(c *Channel) { c.token = token }
}

// WithLogger sets the channel's logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Channel) { c.log = log }
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Channel) {
		c.minBackoff = minDelay
		c.maxBackoff = maxDelay
	}
}

// New creates a channel for the server at serverURL. http and https URLs
// are rewritten to ws and wss.
func New(serverURL string, opts ...Option) (*Channel, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("server url %q: unsupported scheme", serverURL)
	}
	c := &Channel{
		url:        u.JoinPath(streamPath).String(),
		log:        zap.NewNop(),
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		handlers:   make(map[string][]handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ transport.PushChannel = (*Channel)(nil)

// Subscribe registers fn for frames of eventType. Handlers run on the read
// goroutine, one frame at a time, in registration order.
func (c *Channel) Subscribe(eventType string, fn func(raw []byte)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[eventType] = append(c.handlers[eventType], handler{id: id, fn: fn})
	return c.unsubscriber(func() {
		c.handlers[eventType] = without(c.handlers[eventType], id)
	})
}

// OnReset registers fn to run after every reconnect.
func (c *Channel) OnReset(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.resets = append(c.resets, handler{id: id, fn: func([]byte) { fn() }})
	return c.unsubscriber(func() {
		c.resets = without(c.resets, id)
	})
}

func (c *Channel) unsubscriber(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			remove()
			c.mu.Unlock()
		})
	}
}

func without(hs []handler, id uint64) []handler {
	out := make([]handler, 0, len(hs))
	for _, h := range hs {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}

// Connected reports whether the channel currently holds a connection.
func (c *Channel) Connected() bool { return c.connected.Load() }

// Resets returns how many times the channel has reconnected.
func (c *Channel) Resets() int64 { return c.resetN.Load() }

// Run connects and reads frames until ctx is done, reconnecting with
// exponential backoff whenever the connection drops. It returns ctx's error.
func (c *Channel) Run(ctx context.Context) error {
	backoff := c.minBackoff
	established := false
	for attempt := 0; ; attempt++ {
		conn, err := c.dial(ctx)
		if err == nil {
			backoff = c.minBackoff
			if established {
				c.resetN.Add(1)
				c.log.Info("push channel reconnected", zap.Int("attempt", attempt))
				c.signalReset()
			} else {
				established = true
				c.log.Info("push channel connected", zap.String("url", c.url))
			}
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := backoff + jitter(backoff)
		c.log.Warn("push channel down, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", wait),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func jitter(d time.Duration) time.Duration {
	if n := int64(d) / jitterDivisor; n > 0 {
		return time.Duration(rand.Int64N(n))
	}
	return 0
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialWait)
	defer cancel()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{HTTPHeader: header}) //nolint:bodyclose // websocket.Dial closes the response body
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", transport.Classify(err))
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// serve reads frames from conn until it fails or ctx is done.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	c.connected.Store(true)
	defer c.connected.Store(false)
	defer conn.CloseNow()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "client closing")
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("server closed the push channel")
			}
			return fmt.Errorf("read push frame: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		var f transport.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("malformed push frame", zap.Error(err))
			continue
		}
		if f.Type == transport.FrameAck {
			continue
		}
		if f.ID != "" {
			if err := c.ack(ctx, conn, f.ID); err != nil {
				return err
			}
		}
		c.dispatch(f)
	}
}

func (c *Channel) ack(ctx context.Context, conn *websocket.Conn, id string) error {
	b, err := json.Marshal(transport.Frame{ID: id, Type: transport.FrameAck})
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("ack frame %s: %w", id, err)
	}
	return nil
}

func (c *Channel) dispatch(f transport.Frame) {
	c.mu.RLock()
	hs := c.handlers[f.Type]
	c.mu.RUnlock()
	if len(hs) == 0 {
		c.log.Debug("no handler for push frame", zap.String("type", f.Type))
		return
	}
	for _, h := range hs {
		h.fn(f.Data)
	}
}

func (c *Channel) signalReset() {
	c.mu.RLock()
	hs := c.resets
	c.mu.RUnlock()
	for _, h := range hs {
		h.fn(nil)
	}
}
