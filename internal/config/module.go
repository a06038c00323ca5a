package config

import (
	"github.com/go-core-fx/fiberfx"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/history"
	"github.com/repoagent/repoagent/internal/manager"
	"github.com/repoagent/repoagent/internal/watcher"
	"github.com/repoagent/repoagent/pkg/badgerfx"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module(
		"config",
		fx.Provide(New),
		fx.Provide(func(cfg Config) fiberfx.Config {
			return fiberfx.Config{
				Address:     cfg.HTTP.Address,
				ProxyHeader: cfg.HTTP.ProxyHeader,
				Proxies:     cfg.HTTP.Proxies,
			}
		}),
		fx.Provide(func(cfg Config) badgerfx.Config {
			return badgerfx.Config{
				Dir:      cfg.Storage.DataDir,
				InMemory: cfg.Storage.InMemory,
			}
		}),
		fx.Provide(func(cfg Config) cmdcore.Config {
			return cmdcore.Config{
				Mode:       cmdcore.Mode(cfg.Commands.Mode),
				Executable: cfg.Commands.Executable,
				Env:        cfg.Commands.Env,
			}
		}),
		fx.Provide(func(cfg Config) watcher.Config {
			return watcher.Config{
				Enabled:            cfg.Watcher.Enabled,
				PollInterval:       cfg.Watcher.PollInterval,
				Debounce:           cfg.Watcher.Debounce,
				AllowNetworkDrives: cfg.Watcher.AllowNetworkDrives,
			}
		}),
		fx.Provide(func(cfg Config) manager.Config {
			return manager.Config{
				Repositories: cfg.Repositories,
				WatchedFiles: cfg.Watcher.WatchedFiles,
				UserConfigs:  cfg.Watcher.UserConfigs,
			}
		}),
		fx.Provide(func(cfg Config) history.Config {
			return history.Config{
				MaxPerRepository: cfg.History.MaxPerRepository,
			}
		}),
	)
}
