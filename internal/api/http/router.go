package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/tickets", cfg.Tickets.CreateTicket)
	app.Get("/tickets/:id", cfg.Tickets.GetTicket)
	app.Post("/tickets/:id/assign", cfg.Tickets.AssignTicket)

	app.Post("/contractors/:id/fcm-tokens", cfg.Tickets.RegisterToken)
}
