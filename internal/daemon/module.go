package daemon

import (
	"context"

	"github.com/matheus3301/inbox/internal/api"
	"github.com/matheus3301/inbox/internal/broadcast"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/core"
	"github.com/matheus3301/inbox/internal/lock"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/messenger"
	"github.com/matheus3301/inbox/internal/session"
	"github.com/matheus3301/inbox/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Component names the daemon in logs and in the session lock.
const Component = "inboxd"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional override for testing; nil = session.LoadConfig
	Debug       bool
}

// Module returns the fx module for the daemon: the sync core plus the gRPC
// surface on the session socket.
func Module(p Params) fx.Option {
	return fx.Options(
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideLock,
			provideCoreParams,
			provideService,
			NewServer,
		),
		core.Module(),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName, Component), p.SessionName, logging.Options{
		Component: Component,
		Console:   true,
		Debug:     p.Debug,
	})
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), Component)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideCoreParams takes the lock so the whole core is built only after the
// session is held exclusively.
func provideCoreParams(p Params, _ *lock.Lock, logger *zap.Logger) (core.Params, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = session.LoadConfig(p.SessionName); err != nil {
			return core.Params{}, err
		}
	}
	logger.Info("config loaded",
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("poll_interval", cfg.PollInterval.Duration),
	)
	return core.Params{SessionName: p.SessionName, Config: cfg}, nil
}

func provideService(p Params, m *messenger.Messenger, machine *status.Machine, hub *broadcast.Hub, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, m, machine, hub, logger.Named("api"))
}

// registerLifecycle is invoked after core.Module's hooks, so the core is up
// before the socket accepts calls and the socket closes before the core stops.
func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
