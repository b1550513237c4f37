package tcp

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/collabsheet/sheet-service/config"
	"github.com/collabsheet/sheet-service/internal/transport"
)

var Module = fx.Module("tcp",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *transport.Listener {
			return transport.NewListener(cfg.Listen.Host, cfg.Listen.Port, logger, cfg.ClientQueueDepth)
		},
		NewHandler,
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Handler) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return h.Start()
			},
			OnStop: func(context.Context) error {
				h.Stop()
				return nil
			},
		})
	}),
)
