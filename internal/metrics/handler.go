package metrics

import (
	"github.com/go-core-fx/fiberfx/handler"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	gatherer prometheus.Gatherer
}

func NewHandler(gatherer prometheus.Gatherer) handler.Handler {
	return &Handler{gatherer: gatherer}
}

// Register implements handler.Handler.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}
