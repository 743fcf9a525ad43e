// Package httpapi implements transport.Client over the server's JSON API.
package httpapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single call when no timeout is set.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 4 << 10

const jsonType = "application/json"

type conversationsResponse struct {
	Conversations []model.Conversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []model.Message `json:"messages"`
}

// Client talks to the server's /v1 endpoints.
type Client struct {
	http    *resty.Client
	token   string
	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every call, connection and body read included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithToken sets the bearer token sent with every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the client's logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{timeout: DefaultTimeout, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetBaseURL(u.String()).
		SetTimeout(c.timeout).
		SetHeader("Accept", jsonType).
		SetError(transport.ErrorResponse{}).
		SetLogger(c.log.Sugar()).
		OnAfterResponse(c.logCall)
	if c.token != "" {
		c.http.SetAuthToken(c.token)
	}
	return c, nil
}

var _ transport.Client = (*Client)(nil)

func (c *Client) logCall(_ *resty.Client, resp *resty.Response) error {
	c.log.Debug("api call",
		zap.String("method", resp.Request.Method),
		zap.String("path", resp.Request.RawRequest.URL.Path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", resp.Time()),
	)
	return nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).ForceContentType(jsonType)
}

func (c *Client) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	var out conversationsResponse
	resp, err := c.request(ctx).SetResult(&out).Get("/v1/conversations")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	return out.Conversations, nil
}

func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out messagesResponse
	resp, err := c.request(ctx).
		SetPathParam("id", conversationID).
		SetResult(&out).
		Get("/v1/conversations/{id}/messages")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("fetch messages of %s: %w", conversationID, err)
	}
	for i := range out.Messages {
		if out.Messages[i].ConversationID == "" {
			out.Messages[i].ConversationID = conversationID
		}
	}
	return out.Messages, nil
}

func (c *Client) FetchUser(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	resp, err := c.request(ctx).
		SetPathParam("id", userID).
		SetResult(&u).
		Get("/v1/users/{id}")
	if err := check(resp, err); err != nil {
		return model.User{}, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	return u, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (model.Message, error) {
	var m model.Message
	resp, err := c.request(ctx).
		SetBody(transport.SendMessageRequest{ConversationID: conversationID, Text: text}).
		SetResult(&m).
		Post("/v1/messages")
	if err := check(resp, err); err != nil {
		return model.Message{}, fmt.Errorf("send message to %s: %w", conversationID, err)
	}
	return m, nil
}

func (c *Client) CreateConversation(ctx context.Context, name string, recipientIDs []string) (model.Conversation, error) {
	var conv model.Conversation
	resp, err := c.request(ctx).
		SetBody(transport.CreateConversationRequest{Name: name, RecipientIDs: recipientIDs}).
		SetResult(&conv).
		Post("/v1/conversations")
	if err := check(resp, err); err != nil {
		return model.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// check turns a failed call into a transport error. Network failures and
// timeouts are transient; non-2xx answers become a *transport.StatusError.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return transport.Classify(err)
	}
	if resp.IsSuccess() {
		return nil
	}
	var msg string
	if body, ok := resp.Error().(*transport.ErrorResponse); ok {
		msg = body.Message
	}
	if msg == "" {
		msg = resp.String()
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
	}
	return &transport.StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(msg)}
}
