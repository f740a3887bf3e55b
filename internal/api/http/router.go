package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/api/http/handlers"
	"github.com/spec-kit/tweet-triage/internal/auth"
	"github.com/spec-kit/tweet-triage/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Messages       *handlers.MessagesHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentsHandler
	Metrics        *handlers.MetricsHandler
	Alerts         *handlers.AlertsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// Ingestion boundary; callers are upstream collectors, not agents.
	app.Post("/messages", cfg.Messages.Ingest)

	app.Post("/auth/agents/login", cfg.Agents.Login)

	// Query boundary, consumed by the dashboard.
	app.Get("/tickets", cfg.Tickets.List)
	app.Get("/tickets/:id", cfg.Tickets.Get)
	app.Get("/metrics", cfg.Metrics.Get)
	app.Get("/alerts", cfg.Alerts.List)
	app.Get("/alerts/stream", cfg.Alerts.Stream)

	// Agent-action boundary.
	actions := app.Group("/tickets/:id", cfg.AuthMiddleware.Handle, auth.RequireRole())
	actions.Post("/claim", cfg.Tickets.Claim)
	actions.Post("/respond", cfg.Tickets.Respond)
	actions.Post("/escalate", cfg.Tickets.Escalate)
	actions.Post("/reassign", cfg.Tickets.Reassign)
	actions.Post("/reopen", cfg.Tickets.Reopen)
	actions.Post("/reclassify", cfg.Tickets.Reclassify)

	admin := app.Group("/auth/agents", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.AgentRoleSupervisor))
	admin.Post("/register", cfg.Agents.Register)
}
