package app

import (
	"context"
	"encoding/base64"
	"time"

	"palaver/internal/api"
	"palaver/internal/auth"
	"palaver/internal/config"
	palhttp "palaver/internal/http"
	"palaver/internal/logging"
	"palaver/internal/messaging"
	"palaver/internal/notify"
	"palaver/internal/presence"
	"palaver/internal/ratelimit"
	"palaver/internal/registry"
	"palaver/internal/storage"
	"palaver/internal/tracker"
	"palaver/internal/ws"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Params is the resolved configuration handed to the module.
type Params struct {
	Config *config.Config
}

// lifetime bounds background work and websocket sessions to the
// application's run.
type lifetime struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Module composes the chat server: storage, session services, HTTP
// listeners and their lifecycle.
func Module(p Params) fx.Option {
	return fx.Options(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Module("palaver",
			fx.Supply(p.Config),
			fx.Provide(
				provideLogger,
				provideLifetime,
				provideStorage,
				provideAuth,
				registry.New,
				tracker.NewActiveChats,
				tracker.NewTyping,
				provideLimiter,
				providePusher,
				providePresence,
				providePipeline,
				provideHub,
				provideChatServer,
				provideAPI,
				provideAdmin,
				provideAPIServer,
				provideAdminServer,
			),
			fx.Invoke(registerLifecycle),
		),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.JSON)
}

func provideLifetime() *lifetime {
	ctx, cancel := context.WithCancel(context.Background())
	return &lifetime{ctx: ctx, cancel: cancel}
}

func provideStorage(cfg *config.Config, log *zap.Logger) (*storage.BboltStorage, error) {
	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	log.Info("store initialized", zap.String("path", cfg.DBFile))
	return store, nil
}

func provideAuth(cfg *config.Config, lt *lifetime) (*auth.AuthService, error) {
	return auth.NewAuthService(lt.ctx, auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	})
}

func provideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Window: cfg.RateLimit.Window,
		Limits: map[ratelimit.Action]int{
			ratelimit.ActionSend:   cfg.RateLimit.Send,
			ratelimit.ActionEdit:   cfg.RateLimit.Edit,
			ratelimit.ActionDelete: cfg.RateLimit.Delete,
		},
	})
}

func providePusher(cfg *config.Config, store *storage.BboltStorage, log *zap.Logger) *notify.Pusher {
	pcfg := notify.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
	}
	if !pcfg.Enabled() {
		log.Info("web push disabled, no VAPID keys configured")
	}
	return notify.NewPusher(pcfg, store, log.Named("push"))
}

func providePresence(conns *registry.Registry, store *storage.BboltStorage, log *zap.Logger) *presence.Resolver {
	return presence.NewResolver(conns, store, conns, log.Named("presence"))
}

func providePipeline(
	store *storage.BboltStorage,
	limiter *ratelimit.Limiter,
	conns *registry.Registry,
	active *tracker.ActiveChats,
	typing *tracker.Typing,
	pusher *notify.Pusher,
	log *zap.Logger,
) *messaging.Pipeline {
	return messaging.New(messaging.Deps{
		Store:    store,
		Limiter:  limiter,
		Emitter:  conns,
		Active:   active,
		Typing:   typing,
		Notifier: pusher,
		Log:      log.Named("messaging"),
	})
}

func provideHub(
	conns *registry.Registry,
	pipeline *messaging.Pipeline,
	resolver *presence.Resolver,
	active *tracker.ActiveChats,
	typing *tracker.Typing,
	store *storage.BboltStorage,
	log *zap.Logger,
) *ws.Hub {
	return ws.NewHub(ws.HubDeps{
		Registry: conns,
		Pipeline: pipeline,
		Presence: resolver,
		Active:   active,
		Typing:   typing,
		Users:    store,
		Log:      log.Named("hub"),
	})
}

func provideChatServer(lt *lifetime, authService *auth.AuthService, hub *ws.Hub, log *zap.Logger) *ws.Server {
	return ws.NewServer(lt.ctx, authService, hub, log.Named("ws"))
}

func provideAPI(authService *auth.AuthService, store *storage.BboltStorage, hub *ws.Hub, log *zap.Logger) *api.API {
	return api.New(authService, store, hub, log.Named("api"))
}

func provideAdmin(store *storage.BboltStorage, authService *auth.AuthService, hub *ws.Hub, log *zap.Logger) *api.AdminHandler {
	return api.NewAdminHandler(store, authService, hub, log.Named("admin"))
}

func provideAPIServer(lt *lifetime, cfg *config.Config, handlers *api.API, chat *ws.Server, log *zap.Logger) *palhttp.APIServer {
	return palhttp.NewAPIServer(lt.ctx, handlers, chat, cfg.APIAddr, log)
}

func provideAdminServer(cfg *config.Config, admin *api.AdminHandler, log *zap.Logger) *palhttp.AdminServer {
	return palhttp.NewAdminServer(admin, cfg.AdminAddr, log)
}

func registerLifecycle(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	lt *lifetime,
	apiServer *palhttp.APIServer,
	adminServer *palhttp.AdminServer,
	hub *ws.Hub,
	pusher *notify.Pusher,
	store *storage.BboltStorage,
	log *zap.Logger,
) {
	g, gCtx := errgroup.WithContext(lt.ctx)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			g.Go(adminServer.Start)
			g.Go(apiServer.Start)
			g.Go(func() error {
				pusher.Run(gCtx)
				return nil
			})

			go func() {
				if err := g.Wait(); err != nil {
					log.Error("server error", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down servers")

			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := adminServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("admin server shutdown error", zap.Error(err))
			}
			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("API server shutdown error", zap.Error(err))
			}
			hub.CloseAll()
			lt.cancel()
			_ = g.Wait()

			if err := store.Close(); err != nil {
				log.Warn("store close error", zap.Error(err))
			}
			log.Info("stopped")
			_ = log.Sync()
			return nil
		},
	})
}
