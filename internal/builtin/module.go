package builtin

import (
	"github.com/go-core-fx/logger"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module(
		"builtin",
		logger.WithNamedLogger("builtin"),
		fx.Provide(New),
		fx.Provide(func(c *Commands) cmdcore.Handler { return c }),
	)
}
