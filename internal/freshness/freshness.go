// Package freshness decides whether a cached entry may be served without
// fetching it again.
package freshness

import (
	"time"

	"github.com/matheus3301/chatsync/internal/cache"
)

// DefaultUserTTL is how long a fetched user profile stays fresh.
const DefaultUserTTL = 5 * time.Minute

// Policy reports whether an entry is fresh at now.
type Policy interface {
	IsFresh(meta cache.Meta, now time.Time) bool
}

// NeverStale keeps an entry fresh from its first successful fetch until it
// is invalidated. Pushes keep such entries current.
type NeverStale struct{}

func (NeverStale) IsFresh(meta cache.Meta, _ time.Time) bool {
	return usable(meta)
}

// ShortLived keeps an entry fresh for TTL after its last update.
type ShortLived struct {
	TTL time.Duration
}

func (p ShortLived) IsFresh(meta cache.Meta, now time.Time) bool {
	if !usable(meta) {
		return false
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return now.Sub(meta.UpdatedAt) < ttl
}

func usable(meta cache.Meta) bool {
	return meta.Fetched && !meta.Stale && meta.Status == cache.StatusReady
}

// For returns the policy used for a key kind.
func For(kind cache.Kind, userTTL time.Duration) Policy {
	if kind == cache.KindUser {
		return ShortLived{TTL: userTTL}
	}
	return NeverStale{}
}
