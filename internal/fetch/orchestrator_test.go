package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/freshness"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/stretchr/testify/require"
)

func newMessages(t *testing.T) *Orchestrator[[]model.Message] {
	t.Helper()
	store := cache.NewStore[[]model.Message]("messages", nil)
	return New(store, freshness.NeverStale{}, cache.MergeMessages(cache.DefaultPlaceholderTolerance))
}

func staticLoader(calls *atomic.Int32, msgs ...model.Message) Loader[[]model.Message] {
	return func(context.Context) ([]model.Message, error) {
		calls.Add(1)
		return msgs, nil
	}
}

func TestEnsureFetchesOnceThenServesFresh(t *testing.T) {
	o := newMessages(t)
	key := cache.MessagesKey("c1")
	var calls atomic.Int32
	load := staticLoader(&calls, model.Message{ID: "m1", Text: "hi", Timestamp: 100})

	e, err := o.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	require.Equal(t, cache.StatusReady, e.Status)
	require.True(t, e.Fetched)
	require.Len(t, e.Value, 1)

	_, err = o.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
	require.True(t, o.Fresh(key))
}

func TestConcurrentEnsureRunsOneLoader(t *testing.T) {
	o := newMessages(t)
	key := cache.MessagesKey("c1")

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]model.Message, error) {
		calls.Add(1)
		<-release
		return []model.Message{{ID: "m1", Timestamp: 1}}, nil
	}

	var wg sync.WaitGroup
	results := make([]cache.Entry[[]model.Message], 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Ensure(context.Background(), key, load)
		}()
	}

	require.Eventually(t, func() bool { return o.waiters.Load() == 2 && calls.Load() == 1 },
		time.Second, time.Millisecond)
	require.Equal(t, cache.StatusLoading, o.Store().Get(key).Status)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for i, e := range results {
		require.NoError(t, errs[i])
		require.Equal(t, cache.StatusReady, e.Status)
		require.Len(t, e.Value, 1)
	}
}

func TestEnsureFailureKeepsValue(t *testing.T) {
	o := newMessages(t)
	key := cache.MessagesKey("c1")
	var calls atomic.Int32
	_, err := o.Ensure(context.Background(), key, staticLoader(&calls, model.Message{ID: "m1"}))
	require.NoError(t, err)
	o.Store().Invalidate(key)

	boom := errors.New("boom")
	e, err := o.Ensure(context.Background(), key, func(context.Context) ([]model.Message, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, cache.StatusError, e.Status)
	require.ErrorIs(t, e.Err, boom)
	require.Len(t, e.Value, 1)
	require.False(t, o.Fresh(key))
}

func TestCancelledCallerDoesNotCancelLoad(t *testing.T) {
	o := newMessages(t)
	key := cache.MessagesKey("c1")

	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) ([]model.Message, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []model.Message{{ID: "m1"}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Ensure(ctx, key, load)
		done <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return o.Fresh(key) }, time.Second, time.Millisecond)
	require.Len(t, o.Store().Get(key).Value, 1)
}

func TestEnsureAsync(t *testing.T) {
	o := newMessages(t)
	key := cache.MessagesKey("c1")

	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) ([]model.Message, error) {
		calls.Add(1)
		<-release
		return []model.Message{{ID: "m1"}}, nil
	}

	var statuses []cache.Status
	var mu sync.Mutex
	o.Store().Subscribe(key, func(e cache.Entry[[]model.Message]) {
		mu.Lock()
		statuses = append(statuses, e.Status)
		mu.Unlock()
	})

	require.Equal(t, cache.StatusLoading, o.EnsureAsync(key, load))
	require.Equal(t, cache.StatusLoading, o.EnsureAsync(key, load))
	close(release)
	require.Eventually(t, func() bool { return o.Fresh(key) }, time.Second, time.Millisecond)
	require.Equal(t, cache.StatusReady, o.EnsureAsync(key, load))
	require.EqualValues(t, 1, calls.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []cache.Status{cache.StatusLoading, cache.StatusReady}, statuses)
}

func TestPushOnlyEntryIsFetched(t *testing.T) {
	o := newMessages(t)
	key := cache.MessagesKey("c1")
	merge := cache.MergeMessages(cache.DefaultPlaceholderTolerance)
	o.Store().Merge(key, []model.Message{{ID: "m2", Text: "yo", Timestamp: 50}}, merge)
	require.False(t, o.Fresh(key))

	var calls atomic.Int32
	e, err := o.Ensure(context.Background(), key, staticLoader(&calls, model.Message{ID: "m1", Text: "hi", Timestamp: 100}))
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, []string{"m2", "m1"}, []string{e.Value[0].ID, e.Value[1].ID})
}

func TestShortLivedUserExpires(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := cache.NewStore[model.User]("users", clock)
	o := New(store, freshness.ShortLived{TTL: time.Minute}, cache.MergeUser, WithClock(clock))
	key := cache.UserKey("u1")

	var calls atomic.Int32
	load := func(context.Context) (model.User, error) {
		calls.Add(1)
		return model.User{ID: "u1", DisplayName: "Ana"}, nil
	}
	_, err := o.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	_, err = o.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = o.Ensure(context.Background(), key, load)
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}
