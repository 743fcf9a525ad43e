package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/status"
)

// LinkReporter reports the push link state.
type LinkReporter interface {
	Link() status.State
}

// SessionStatus summarizes the running client.
type SessionStatus struct {
	Profile   string
	UserID    string
	ServerURL string
	Link      status.State
	Uptime    time.Duration

	Conversations int
	MessageLists  int
	Users         int
}

// SessionService reports on the client session.
type SessionService struct {
	profile   string
	userID    string
	serverURL string
	startedAt time.Time
	link      LinkReporter
	cache     *cache.Cache
	bus       *bus.Bus
}

// NewSessionService creates a new session service.
func NewSessionService(profile, userID, serverURL string, link LinkReporter, c *cache.Cache, b *bus.Bus) *SessionService {
	return &SessionService{
		profile:   profile,
		userID:    userID,
		serverURL: serverURL,
		startedAt: time.Now(),
		link:      link,
		cache:     c,
		bus:       b,
	}
}

// Status returns the current session summary.
func (s *SessionService) Status() SessionStatus {
	st := SessionStatus{
		Profile:   s.profile,
		UserID:    s.userID,
		ServerURL: s.serverURL,
		Link:      status.Detached,
		Uptime:    time.Since(s.startedAt),
	}
	if s.link != nil {
		st.Link = s.link.Link()
	}
	if s.cache != nil {
		st.Conversations = len(s.cache.Conversations.Get(cache.ConversationsKey()).Value)
		st.MessageLists = len(s.cache.Messages.Keys())
		st.Users = len(s.cache.Users.Keys())
	}
	return st
}

// WatchLink calls fn for every push.* bus event until ctx is done.
func (s *SessionService) WatchLink(ctx context.Context, fn func(bus.Event)) error {
	return watch(ctx, s.bus, "push.", fn)
}
