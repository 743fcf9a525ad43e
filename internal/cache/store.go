package cache

import (
	"sync"
	"time"
)

// MergeFunc combines the cached value for a key with an incoming value.
// found is false when the key holds no value yet. It returns the merged
// value and whether it differs from current. Implementations must be
// idempotent and must not modify current or incoming in place.
type MergeFunc[V any] func(current V, found bool, incoming V) (V, bool)

// Store is a keyed, in-memory mirror of one entity kind.
//
// All writes go through apply, which serializes them and then notifies the
// key's observers with the new snapshot before the next write starts.
// Observers therefore see snapshots in apply order. An observer may read the
// store but must not write to it from the callback.
type Store[V any] struct {
	name  string
	clock func() time.Time

	writeMu sync.Mutex // serializes apply + notify

	mu      sync.RWMutex // guards entries
	entries map[Key]*Entry[V]

	observers *fanout[V]
}

// NewStore creates an empty store. A nil clock defaults to time.Now.
func NewStore[V any](name string, clock func() time.Time) *Store[V] {
	if clock == nil {
		clock = time.Now
	}
	return &Store[V]{
		name:      name,
		clock:     clock,
		entries:   make(map[Key]*Entry[V]),
		observers: newFanout[V](),
	}
}

// Name returns the store's name, used in logs and metrics.
func (s *Store[V]) Name() string { return s.name }

// Get returns the current snapshot for key. Unknown keys report StatusAbsent.
func (s *Store[V]) Get(key Key) Entry[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok {
		return *e
	}
	return Entry[V]{Key: key, Status: StatusAbsent}
}

// Keys returns every key the store has an entry for.
func (s *Store[V]) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Subscribe registers fn for changes of key. The returned function removes
// the registration and is safe to call more than once.
func (s *Store[V]) Subscribe(key Key, fn Observer[V]) (unsubscribe func()) {
	return s.observers.add(key, fn)
}

// SubscribeAll registers fn for changes of every key.
func (s *Store[V]) SubscribeAll(fn Observer[V]) (unsubscribe func()) {
	return s.observers.add("", fn)
}

// Observers returns the number of observers registered on key.
func (s *Store[V]) Observers(key Key) int {
	return s.observers.count(key)
}

// Merge combines incoming into the value of key with strategy. It is the
// write path for pushes and optimistic mutations. A merge that changes
// nothing leaves the entry untouched and notifies nobody. Merge never
// clears Stale: a stale key may have missed events, and a push only
// proves it received this one.
func (s *Store[V]) Merge(key Key, incoming V, strategy MergeFunc[V]) Entry[V] {
	return s.apply(key, func(e Entry[V]) (Entry[V], bool) {
		merged, changed := strategy(e.Value, e.HasValue, incoming)
		if !changed {
			if !e.HasValue || e.Status == StatusReady {
				return e, false
			}
		} else {
			e.Value = merged
			e.HasValue = true
		}
		e.Status = StatusReady
		e.Err = nil
		e.UpdatedAt = s.clock()
		return e, true
	})
}

// Resolve merges the result of a successful fetch and marks the entry as
// fetched and ready. It is the only write that clears Stale.
func (s *Store[V]) Resolve(key Key, fetched V, strategy MergeFunc[V]) Entry[V] {
	return s.apply(key, func(e Entry[V]) (Entry[V], bool) {
		merged, changed := strategy(e.Value, e.HasValue, fetched)
		if changed || !e.HasValue {
			e.Value = merged
			e.HasValue = true
		}
		e.Status = StatusReady
		e.Err = nil
		e.Fetched = true
		e.Stale = false
		e.UpdatedAt = s.clock()
		return e, true
	})
}

// MarkLoading records that a fetch for key is in flight. The cached value,
// if any, is kept.
func (s *Store[V]) MarkLoading(key Key) Entry[V] {
	return s.apply(key, func(e Entry[V]) (Entry[V], bool) {
		if e.Status == StatusLoading {
			return e, false
		}
		e.Status = StatusLoading
		return e, true
	})
}

// MarkFailed records a failed fetch. The previous value is preserved and the
// error is retained for observers.
func (s *Store[V]) MarkFailed(key Key, err error) Entry[V] {
	return s.apply(key, func(e Entry[V]) (Entry[V], bool) {
		e.Status = StatusError
		e.Err = err
		return e, true
	})
}

// Invalidate marks key stale so the next ensure refetches it.
func (s *Store[V]) Invalidate(key Key) Entry[V] {
	e, _ := s.invalidate(key)
	return e
}

// InvalidateAll marks every entry stale and returns the keys that were
// not stale before.
func (s *Store[V]) InvalidateAll() []Key {
	var affected []Key
	for _, key := range s.Keys() {
		if _, changed := s.invalidate(key); changed {
			affected = append(affected, key)
		}
	}
	return affected
}

func (s *Store[V]) invalidate(key Key) (Entry[V], bool) {
	return s.update(key, func(e Entry[V]) (Entry[V], bool) {
		if e.Status == StatusAbsent || e.Stale {
			return e, false
		}
		e.Stale = true
		return e, true
	})
}

// Close drops every observer. Entries stay readable.
func (s *Store[V]) Close() {
	s.observers.clear()
}

func (s *Store[V]) apply(key Key, fn func(Entry[V]) (Entry[V], bool)) Entry[V] {
	e, _ := s.update(key, fn)
	return e
}

// update runs fn on the current snapshot of key and, if fn reports a
// change, stores the result and notifies observers.
func (s *Store[V]) update(key Key, fn func(Entry[V]) (Entry[V], bool)) (Entry[V], bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	current := Entry[V]{Key: key, Status: StatusAbsent}
	if e, ok := s.entries[key]; ok {
		current = *e
	}
	next, changed := fn(current)
	if !changed {
		s.mu.Unlock()
		return current, false
	}
	next.Key = key
	s.entries[key] = &next
	s.mu.Unlock()

	s.observers.notify(next)
	return next, true
}
