// Package fetch loads cache entries from the server on demand. Concurrent
// requests for the same key share one loader invocation.
package fetch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/freshness"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative value for a key.
type Loader[V any] func(ctx context.Context) (V, error)

// Option configures an Orchestrator.
type Option func(*settings)

type settings struct {
	log     *zap.Logger
	metrics *Metrics
	clock   func() time.Time
}

// WithLogger sets the orchestrator's logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithMetrics sets the instruments the orchestrator records to.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithClock sets the clock used for freshness checks.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) { s.clock = clock }
}

// Orchestrator decides when a key of one store needs fetching and runs the
// fetch at most once at a time per key.
type Orchestrator[V any] struct {
	store    *cache.Store[V]
	policy   freshness.Policy
	strategy cache.MergeFunc[V]

	log     *zap.Logger
	metrics *Metrics
	clock   func() time.Time

	group   singleflight.Group
	waiters atomic.Int64
}

// New creates an orchestrator for store. Fetched values are merged with
// strategy and checked against policy.
func New[V any](store *cache.Store[V], policy freshness.Policy, strategy cache.MergeFunc[V], opts ...Option) *Orchestrator[V] {
	s := settings{clock: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		// The global meter provider never fails to create instruments.
		s.metrics, _ = NewMetrics(nil)
	}
	return &Orchestrator[V]{
		store:    store,
		policy:   policy,
		strategy: strategy,
		log:      s.log.With(zap.String("store", store.Name())),
		metrics:  s.metrics,
		clock:    s.clock,
	}
}

// Store returns the store the orchestrator fills.
func (o *Orchestrator[V]) Store() *cache.Store[V] { return o.store }

// Fresh reports whether key can be served without a fetch.
func (o *Orchestrator[V]) Fresh(key cache.Key) bool {
	return o.policy.IsFresh(o.store.Get(key).Meta(), o.clock())
}

// Ensure returns the entry for key, fetching it first unless it is fresh.
// When a fetch for key is already in flight the caller waits for it instead
// of starting another. Cancelling ctx stops the wait but not the fetch,
// whose result is still merged.
//
// The returned error is the fetch error or ctx's error.
func (o *Orchestrator[V]) Ensure(ctx context.Context, key cache.Key, load Loader[V]) (cache.Entry[V], error) {
	if e := o.store.Get(key); o.policy.IsFresh(e.Meta(), o.clock()) {
		return e, nil
	}

	o.waiters.Add(1)
	o.metrics.waiting(ctx, o.store.Name(), 1)
	defer func() {
		o.waiters.Add(-1)
		o.metrics.waiting(ctx, o.store.Name(), -1)
	}()

	ch, ran := o.start(ctx, key, load)
	select {
	case res := <-ch:
		if !ran.Load() {
			o.metrics.joined(ctx, o.store.Name())
		}
		return o.store.Get(key), res.Err
	case <-ctx.Done():
		return o.store.Get(key), ctx.Err()
	}
}

// EnsureAsync starts fetching key unless it is fresh and returns without
// waiting. It reports the key's status: ready when fresh, loading otherwise.
func (o *Orchestrator[V]) EnsureAsync(key cache.Key, load Loader[V]) cache.Status {
	e := o.store.Get(key)
	if o.policy.IsFresh(e.Meta(), o.clock()) {
		return e.Status
	}
	o.start(context.Background(), key, load)
	return cache.StatusLoading
}

// start joins or starts the load for key. ran is set once this caller's own
// loader has run, so a result with ran unset came from another caller.
func (o *Orchestrator[V]) start(ctx context.Context, key cache.Key, load Loader[V]) (<-chan singleflight.Result, *atomic.Bool) {
	ran := new(atomic.Bool)
	detached := context.WithoutCancel(ctx)
	ch := o.group.DoChan(string(key), func() (any, error) {
		ran.Store(true)
		return nil, o.run(detached, key, load)
	})
	return ch, ran
}

func (o *Orchestrator[V]) run(ctx context.Context, key cache.Key, load Loader[V]) error {
	o.store.MarkLoading(key)
	o.metrics.loadStarted(ctx, o.store.Name())
	o.log.Debug("fetch started", zap.String("key", key.String()))

	start := time.Now()
	v, err := load(ctx)
	o.metrics.loadFinished(ctx, o.store.Name(), time.Since(start).Seconds(), err)
	if err != nil {
		o.store.MarkFailed(key, err)
		o.log.Warn("fetch failed", zap.String("key", key.String()), zap.Error(err))
		return err
	}

	o.store.Resolve(key, v, o.strategy)
	o.log.Debug("fetch done", zap.String("key", key.String()), zap.Duration("took", time.Since(start)))
	return nil
}
