package cmd

import (
	"log/slog"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/collabsheet/sheet-service/config"
	"github.com/collabsheet/sheet-service/internal/adapter/pubsub"
	"github.com/collabsheet/sheet-service/internal/domain/registry"
	tcphandler "github.com/collabsheet/sheet-service/internal/handler/tcp"
	webhandler "github.com/collabsheet/sheet-service/internal/handler/web"
	"github.com/collabsheet/sheet-service/internal/service"
	"github.com/collabsheet/sheet-service/internal/storage"
)

// NewApp assembles the service.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			func(cfg *config.Config, logger *slog.Logger) *storage.Store {
				return storage.NewStore(cfg.SpreadsheetsDir, cfg.UsersFile, logger)
			},
			func(s *storage.Store) registry.DocumentStore { return s },
			func(s *storage.Store) service.UserStore { return s },
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger}
		}),
		pubsub.Module,
		registry.Module,
		service.Module,
		tcphandler.Module,
		webhandler.Module,
	)
}

// ProvideLogger builds the process-wide structured logger.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
