// Package app wires the client together with fx.
package app

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/fetch"
	"github.com/matheus3301/chatsync/internal/freshness"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/mutation"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/matheus3301/chatsync/internal/push"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/httpapi"
	"github.com/matheus3301/chatsync/internal/transport/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
	// Command names the binary in the profile lock.
	Command string
	// Exclusive takes the profile lock for the lifetime of the app.
	Exclusive bool
	// Push attaches the cache to the server's push channel on start.
	Push bool
	// Console mirrors logs to stderr.
	Console bool
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatsync",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCache,
			provideMetrics,
			provideClient,
			provideChannel,
			provideConversationList,
			provideConversations,
			provideMessages,
			provideUsers,
			provideCoordinator,
			provideReconciler,
			provideChatService,
			provideMessageService,
			provideUserService,
			provideSessionService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config == nil {
		return nil, errors.New("app: no configuration")
	}
	return p.Config, p.Config.Validate()
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, logging.Options{
		Level:   cfg.LogLevel,
		Console: p.Console,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

// provideLock returns a nil lock unless the app runs exclusively.
func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	if !p.Exclusive {
		return nil, nil
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), p.Command)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache() *cache.Cache {
	return cache.New(nil)
}

func provideMetrics() (*fetch.Metrics, error) {
	return fetch.NewMetrics(nil)
}

func provideClient(cfg *config.Config, logger *zap.Logger) (transport.Client, error) {
	return httpapi.New(cfg.ServerURL,
		httpapi.WithTimeout(cfg.RequestTimeout),
		httpapi.WithToken(cfg.Token),
		httpapi.WithLogger(logger.Named("http")),
	)
}

func provideChannel(cfg *config.Config, logger *zap.Logger) (*ws.Channel, error) {
	return ws.New(cfg.ServerURL,
		ws.WithToken(cfg.Token),
		ws.WithLogger(logger.Named("push")),
	)
}

func fetchOptions(logger *zap.Logger, m *fetch.Metrics) []fetch.Option {
	return []fetch.Option{fetch.WithLogger(logger.Named("fetch")), fetch.WithMetrics(m)}
}

func provideConversationList(c *cache.Cache, cfg *config.Config, logger *zap.Logger, m *fetch.Metrics) *fetch.Orchestrator[[]model.Conversation] {
	return fetch.New(c.Conversations, freshness.For(cache.KindConversations, cfg.UserTTL),
		cache.MergeConversationList, fetchOptions(logger, m)...)
}

func provideConversations(c *cache.Cache, cfg *config.Config, logger *zap.Logger, m *fetch.Metrics) *fetch.Orchestrator[model.Conversation] {
	return fetch.New(c.Conversation, freshness.For(cache.KindConversation, cfg.UserTTL),
		cache.MergeConversation, fetchOptions(logger, m)...)
}

func provideMessages(c *cache.Cache, cfg *config.Config, logger *zap.Logger, m *fetch.Metrics) *fetch.Orchestrator[[]model.Message] {
	return fetch.New(c.Messages, freshness.For(cache.KindMessages, cfg.UserTTL),
		cache.MergeMessages(cfg.PlaceholderTolerance), fetchOptions(logger, m)...)
}

func provideUsers(c *cache.Cache, cfg *config.Config, logger *zap.Logger, m *fetch.Metrics) *fetch.Orchestrator[model.User] {
	return fetch.New(c.Users, freshness.For(cache.KindUser, cfg.UserTTL),
		cache.MergeUser, fetchOptions(logger, m)...)
}

func provideCoordinator(c *cache.Cache, client transport.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *mutation.Coordinator {
	return mutation.New(c, client, b, logger.Named("mutation"), mutation.Config{
		UserID:    cfg.UserID,
		Tolerance: cfg.PlaceholderTolerance,
	})
}

func provideReconciler(c *cache.Cache, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *push.Reconciler {
	return push.New(c, b, logger.Named("reconciler"), cfg.PlaceholderTolerance)
}

func provideChatService(
	c *cache.Cache,
	list *fetch.Orchestrator[[]model.Conversation],
	convs *fetch.Orchestrator[model.Conversation],
	client transport.Client,
	coord *mutation.Coordinator,
	b *bus.Bus,
) *api.ChatService {
	return api.NewChatService(c, list, convs, client, coord, b)
}

func provideMessageService(
	c *cache.Cache,
	msgs *fetch.Orchestrator[[]model.Message],
	client transport.Client,
	coord *mutation.Coordinator,
	b *bus.Bus,
) *api.MessageService {
	return api.NewMessageService(c, msgs, client, coord, b)
}

func provideUserService(c *cache.Cache, users *fetch.Orchestrator[model.User], client transport.Client) *api.UserService {
	return api.NewUserService(c, users, client)
}

func provideSessionService(p Params, cfg *config.Config, r *push.Reconciler, c *cache.Cache, b *bus.Bus) *api.SessionService {
	return api.NewSessionService(p.Profile, cfg.UserID, cfg.ServerURL, r, c, b)
}

type lifecycleParams struct {
	fx.In

	Params     Params
	Lock       *lock.Lock
	Cache      *cache.Cache
	Bus        *bus.Bus
	Channel    *ws.Channel
	Reconciler *push.Reconciler
	Coord      *mutation.Coordinator
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !lp.Params.Push {
				close(done)
				return nil
			}
			if err := lp.Reconciler.Attach(ctx, lp.Channel); err != nil {
				close(done)
				return err
			}
			// Run the push channel in background.
			go func() {
				defer close(done)
				if err := lp.Channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lp.Logger.Error("push channel stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			lp.Reconciler.Close()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			if err := lp.Coord.Wait(stopCtx); err != nil {
				lp.Logger.Warn("sends still in flight at shutdown", zap.Error(err))
			}
			lp.Cache.Close()
			lp.Bus.Close()
			if lp.Lock != nil {
				if err := lp.Lock.Release(); err != nil {
					lp.Logger.Warn("error releasing lock", zap.Error(err))
				}
			}
			lp.Logger.Info("client stopped")
			_ = lp.Logger.Sync()
			return nil
		},
	})
}
