package registry

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(store DocumentStore, feed EditPublisher, logger *slog.Logger) *Hub {
			return NewHub(store, feed, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Hub) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return h.Shutdown(ctx)
			},
		})
	}),
)
