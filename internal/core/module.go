// Package core wires the sync core for every process that hosts it.
package core

import (
	"context"
	"time"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/broadcast"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/messenger"
	"github.com/matheus3301/inbox/internal/outbox"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/unread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params is supplied by the hosting binary. A *zap.Logger must be provided too.
type Params struct {
	SessionName string
	Config      *config.Config
}

// Identity is the signed-in user as read from the bearer token. Valid is false
// when there is no usable token; the session then starts signed out.
type Identity struct {
	Token  string
	Claims backend.Claims
	Valid  bool
}

// Module provides the sync core: bus, session state, API client, conversation
// store, send pipeline, unread aggregator, hub and messenger.
func Module() fx.Option {
	return fx.Module("core",
		fx.Provide(
			provideBus,
			provideStateMachine,
			provideIdentity,
			provideClient,
			provideStore,
			provideTransfer,
			provideAggregator,
			provideHub,
			providePipeline,
			provideMessenger,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideIdentity(p Params, logger *zap.Logger) Identity {
	token, err := p.Config.Token()
	if err != nil {
		logger.Warn("token unavailable", zap.Error(err))
		return Identity{}
	}
	if token == "" {
		logger.Info("no token found, session starts signed out")
		return Identity{}
	}
	claims, err := backend.ParseToken(token)
	if err != nil {
		logger.Warn("token unreadable, session starts signed out", zap.Error(err))
		return Identity{}
	}
	if claims.Expired(time.Now()) {
		logger.Warn("token expired, session starts signed out", zap.Time("expired_at", claims.ExpiresAt))
		return Identity{}
	}
	return Identity{Token: token, Claims: claims, Valid: true}
}

func provideClient(p Params, id Identity, logger *zap.Logger) (*backend.Client, error) {
	return backend.New(backend.Options{
		BaseURL: p.Config.BaseURL,
		Token:   id.Token,
		Timeout: p.Config.RequestTimeout.Duration,
		Logger:  logger.Named("api"),
	})
}

func provideStore(b *bus.Bus) *conversation.Store {
	return conversation.NewStore(b)
}

func provideTransfer(p Params, client *backend.Client, logger *zap.Logger) *attachment.Transfer {
	policy := attachment.Policy{
		MaxBytes: p.Config.MaxAttachmentBytes,
		Allowed:  p.Config.AllowedTypes,
	}
	return attachment.NewTransfer(policy, client, client, logger.Named("attachment"))
}

func provideAggregator(p Params, client *backend.Client, b *bus.Bus, logger *zap.Logger) *unread.Aggregator {
	return unread.New(client, unread.Options{
		Interval: p.Config.PollInterval.Duration,
		Timeout:  p.Config.RequestTimeout.Duration,
	}, b, logger.Named("unread"))
}

func provideHub(agg *unread.Aggregator, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *broadcast.Hub {
	return broadcast.NewHub(agg, machine, b, logger.Named("broadcast"))
}

func providePipeline(store *conversation.Store, transfer *attachment.Transfer, hub *broadcast.Hub, b *bus.Bus, logger *zap.Logger) *outbox.Pipeline {
	return outbox.NewPipeline(store, transfer, transfer.Policy(), hub, b, logger.Named("outbox"))
}

func provideMessenger(p Params, id Identity, client *backend.Client, store *conversation.Store, pipeline *outbox.Pipeline,
	transfer *attachment.Transfer, agg *unread.Aggregator, hub *broadcast.Hub, machine *status.Machine, logger *zap.Logger) *messenger.Messenger {
	return messenger.New(messenger.Deps{
		Me:          conversation.User{ID: id.Claims.UserID},
		Directory:   client,
		Store:       store,
		Pipeline:    pipeline,
		Transfer:    transfer,
		Aggregator:  agg,
		Hub:         hub,
		Machine:     machine,
		DownloadDir: p.Config.DownloadDir,
		Logger:      logger.Named("messenger"),
	})
}

func registerLifecycle(lc fx.Lifecycle, id Identity, machine *status.Machine, hub *broadcast.Hub, pipeline *outbox.Pipeline, m *messenger.Messenger, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			hub.Start()
			if id.Valid {
				logger.Info("session active", zap.String("user_id", id.Claims.UserID))
				return machine.Transition(status.Active)
			}
			return machine.Transition(status.SignedOut)
		},
		OnStop: func(_ context.Context) error {
			_ = machine.Transition(status.Ended)
			m.Stop()
			pipeline.Stop()
			hub.Stop()
			return nil
		},
	})
}
