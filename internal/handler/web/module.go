package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/collabsheet/sheet-service/config"
	"github.com/collabsheet/sheet-service/internal/handler/ws"
	"github.com/collabsheet/sheet-service/internal/service"
)

var Module = fx.Module("web",
	fx.Provide(
		func(logger *slog.Logger, coord *service.Coordinator, cfg *config.Config) *ws.WSHandler {
			return ws.NewWSHandler(logger, coord, cfg.ClientQueueDepth)
		},
		NewRouter,
	),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, router *chi.Mux, logger *slog.Logger) {
		if cfg.HTTPAddr == "" {
			return
		}

		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					logger.Info("http surface listening", "addr", cfg.HTTPAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http surface failed", "err", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
