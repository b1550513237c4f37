package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"

	"github.com/collabsheet/sheet-service/internal/domain/registry"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(logger *slog.Logger) *gochannel.GoChannel {
			return gochannel.NewGoChannel(
				gochannel.Config{OutputChannelBuffer: 256},
				watermill.NewSlogLogger(logger),
			)
		},
		func(ch *gochannel.GoChannel, logger *slog.Logger) EditDispatcher {
			return NewEditDispatcher(ch, logger)
		},
		func(d EditDispatcher) registry.EditPublisher { return d },
		NewEditCounter,
	),
	fx.Invoke(func(lc fx.Lifecycle, ch *gochannel.GoChannel, counter *EditCounter) {
		feedCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return counter.Run(feedCtx, ch)
			},
			OnStop: func(context.Context) error {
				cancel()
				return ch.Close()
			},
		})
	}),
)
