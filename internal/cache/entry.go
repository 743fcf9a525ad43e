package cache

import "time"

// Status is the load state of a cache entry.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Entry is a snapshot of one cached value and its metadata.
// Values are shared between snapshots and must be treated as read-only.
type Entry[V any] struct {
	Key       Key
	Value     V
	HasValue  bool
	Status    Status
	Err       error
	UpdatedAt time.Time
	// Fetched is set once a fetch has populated the entry. Push events alone
	// never set it: a list built only from pushes is partial.
	Fetched bool
	// Stale is set by invalidation and cleared only by the next successful
	// fetch. Pushes merged in between keep it set.
	Stale bool
}

// Meta is the value-independent part of an entry, used by freshness policies.
type Meta struct {
	Status    Status
	UpdatedAt time.Time
	Fetched   bool
	Stale     bool
}

// Meta returns the entry's metadata.
func (e Entry[V]) Meta() Meta {
	return Meta{Status: e.Status, UpdatedAt: e.UpdatedAt, Fetched: e.Fetched, Stale: e.Stale}
}
