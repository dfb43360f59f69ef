package tui

import (
	"context"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/core"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/messenger"
	"github.com/matheus3301/inbox/internal/session"
	"github.com/matheus3301/inbox/internal/status"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Component names the TUI in logs.
const Component = "inboxtui"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config // optional override for testing; nil = session.LoadConfig
	Debug       bool
}

// Module returns the fx module for the terminal client: the sync core hosted
// in-process plus the App. The App is not run by the module; the binary runs
// it between Start and Stop. Logs go to the session log file only, fx's own
// included, since the terminal belongs to the UI.
func Module(p Params) fx.Option {
	return fx.Options(
		fx.Supply(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideLogger,
			provideCoreParams,
			provideApp,
		),
		core.Module(),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName, Component), p.SessionName, logging.Options{
		Component: Component,
		Console:   false,
		Debug:     p.Debug,
	})
}

func provideCoreParams(p Params) (core.Params, error) {
	cfg := p.Config
	if cfg == nil {
		if err := session.EnsureDir(p.SessionName); err != nil {
			return core.Params{}, err
		}
		var err error
		if cfg, err = session.LoadConfig(p.SessionName); err != nil {
			return core.Params{}, err
		}
	}
	return core.Params{SessionName: p.SessionName, Config: cfg}, nil
}

func provideApp(p Params, cp core.Params, m *messenger.Messenger, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *App {
	hint := cp.Config.TokenFile
	if hint == "" {
		hint = session.TokenPath(p.SessionName)
	}
	return NewApp(Deps{
		SessionName: p.SessionName,
		TokenHint:   hint,
		Messenger:   m,
		Machine:     machine,
		Bus:         b,
		Logger:      logger.Named("tui"),
	})
}

// registerLifecycle runs after the core's hooks, so the App's workers stop
// before the core they read from.
func registerLifecycle(lc fx.Lifecycle, app *App, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			app.Stop()
			logger.Info("tui stopped")
			return nil
		},
	})
}
