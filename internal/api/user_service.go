package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/fetch"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/transport"
)

// UserService serves user profiles.
type UserService struct {
	cache  *cache.Cache
	users  *fetch.Orchestrator[model.User]
	remote transport.Client
}

// NewUserService creates a user service over the cache.
func NewUserService(c *cache.Cache, users *fetch.Orchestrator[model.User], remote transport.Client) *UserService {
	return &UserService{cache: c, users: users, remote: remote}
}

// User returns the cached profile of id.
func (s *UserService) User(id string) cache.Entry[model.User] {
	return s.cache.Users.Get(cache.UserKey(id))
}

// EnsureUser fetches the profile of id unless it is fresh.
func (s *UserService) EnsureUser(ctx context.Context, id string) (cache.Entry[model.User], error) {
	return s.users.Ensure(ctx, cache.UserKey(id), s.loader(id))
}

// LoadUser starts fetching the profile of id in the background unless it
// is fresh.
func (s *UserService) LoadUser(id string) cache.Status {
	return s.users.EnsureAsync(cache.UserKey(id), s.loader(id))
}

func (s *UserService) loader(id string) fetch.Loader[model.User] {
	return func(ctx context.Context) (model.User, error) {
		return s.remote.FetchUser(ctx, id)
	}
}

// SubscribeUser calls fn with every new snapshot of the profile of id.
func (s *UserService) SubscribeUser(id string, fn cache.Observer[model.User]) (unsubscribe func()) {
	return s.cache.Users.Subscribe(cache.UserKey(id), fn)
}

// SubscribeUsers calls fn with every new snapshot of any profile.
func (s *UserService) SubscribeUsers(fn cache.Observer[model.User]) (unsubscribe func()) {
	return s.cache.Users.SubscribeAll(fn)
}

// DisplayName returns the cached display name of id, or id itself while the
// profile is unknown. It never blocks. A missing or expired profile is
// fetched in the background; a failed one is left alone until EnsureUser.
func (s *UserService) DisplayName(id string) string {
	u := s.User(id)
	if u.Status != cache.StatusError && u.Status != cache.StatusLoading {
		s.LoadUser(id)
	}
	if u.HasValue && u.Value.DisplayName != "" {
		return u.Value.DisplayName
	}
	return id
}
