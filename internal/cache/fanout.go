package cache

import "sync"

// Observer receives the new snapshot of a key after it changes.
type Observer[V any] func(Entry[V])

type subscriber[V any] struct {
	id uint64
	fn Observer[V]
}

// fanout is a per-key callback registry. A subscription on the empty key
// receives every key.
type fanout[V any] struct {
	mu   sync.Mutex
	next uint64
	subs map[Key][]subscriber[V]
}

func newFanout[V any]() *fanout[V] {
	return &fanout[V]{subs: make(map[Key][]subscriber[V])}
}

func (f *fanout[V]) add(key Key, fn Observer[V]) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[key] = append(f.subs[key], subscriber[V]{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(key, id) })
	}
}

func (f *fanout[V]) remove(key Key, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[key]
	for i, s := range subs {
		if s.id == id {
			f.subs[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(f.subs[key]) == 0 {
		delete(f.subs, key)
	}
}

// notify delivers e synchronously, in registration order, to the observers
// of e.Key followed by the wildcard observers.
func (f *fanout[V]) notify(e Entry[V]) {
	f.mu.Lock()
	targets := make([]subscriber[V], 0, len(f.subs[e.Key])+len(f.subs[""]))
	targets = append(targets, f.subs[e.Key]...)
	targets = append(targets, f.subs[""]...)
	f.mu.Unlock()

	for _, s := range targets {
		s.fn(e)
	}
}

func (f *fanout[V]) count(key Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[key])
}

func (f *fanout[V]) clear() {
	f.mu.Lock()
	f.subs = make(map[Key][]subscriber[V])
	f.mu.Unlock()
}
