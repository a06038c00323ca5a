package server

import (
	"github.com/go-core-fx/fiberfx"
	"github.com/go-core-fx/fiberfx/handler"
	"github.com/go-core-fx/fiberfx/health"
	"github.com/go-core-fx/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/repoagent/repoagent/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the operational endpoints: health and Prometheus metrics.
func Module() fx.Option {
	return fx.Module(
		"server",
		logger.WithNamedLogger("server"),

		fx.Provide(func(log *zap.Logger) fiberfx.Options {
			opts := fiberfx.Options{}
			opts.WithErrorHandler(fiberfx.NewJSONErrorHandler(log))
			return opts
		}),

		fx.Provide(
			fx.Annotate(health.NewHandler, fx.ResultTags(`name:"health-handler"`)), fx.Private,
			fx.Annotate(metrics.NewHandler, fx.ResultTags(`name:"metrics-handler"`)), fx.Private,
		),

		fx.Invoke(
			fx.Annotate(
				func(healthHandler, metricsHandler handler.Handler, app *fiber.App) {
					healthHandler.Register(app)
					metricsHandler.Register(app)
				},
				fx.ParamTags(`name:"health-handler"`, `name:"metrics-handler"`),
			),
		),
	)
}
