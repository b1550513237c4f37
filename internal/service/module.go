package service

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("service",
	fx.Provide(
		NewUserRegistry,
		NewCoordinator,
	),
	fx.Invoke(func(lc fx.Lifecycle, users *UserRegistry, co *Coordinator) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				if err := users.Load(); err != nil {
					return err
				}
				return users.Watch()
			},
			OnStop: func(ctx context.Context) error {
				users.StopWatch()
				return co.Stop(ctx)
			},
		})
	}),
)
