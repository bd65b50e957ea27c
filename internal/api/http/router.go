package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-gateway/internal/api/http/handlers"
	"github.com/spec-kit/incident-gateway/internal/auth"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/mcp"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Incidents      *handlers.IncidentsHandler
	Auth           *handlers.AuthHandler
	Submissions    *handlers.SubmissionsHandler
	Protocol       *mcp.Server
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. REST endpoints and the protocol
// endpoint are alternate facades over the same services.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Health)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/mcp", protocolHandler(cfg.Protocol))

	incidents := app.Group("/incidents")
	incidents.Get("/", cfg.Incidents.List)
	incidents.Post("/", cfg.Incidents.Create)
	incidents.Get("/:id", cfg.Incidents.Get)
	incidents.Patch("/:id", cfg.Incidents.Update)
	incidents.Delete("/:id", cfg.Incidents.Delete)
	incidents.Post("/:id/assign", cfg.Incidents.Assign)
	incidents.Post("/:id/resolve", cfg.Incidents.Resolve)

	authGroup := app.Group("/auth")
	authGroup.Post("/register/:role", cfg.Auth.Register)
	authGroup.Post("/login/:role", cfg.Auth.Login)

	submissions := app.Group("/submissions", cfg.AuthMiddleware.Handle)
	submissions.Post("/", auth.RequireRole(domain.RoleUser), cfg.Submissions.Submit)
	submissions.Get("/mine", auth.RequireAnyRole(), cfg.Submissions.Mine)
	submissions.Get("/pending", auth.RequireRole(domain.RoleAdmin), cfg.Submissions.Pending)
	submissions.Get("/stats", auth.RequireRole(domain.RoleAdmin), cfg.Submissions.Stats)
	submissions.Post("/:id/approve", auth.RequireRole(domain.RoleAdmin), cfg.Submissions.Approve)
	submissions.Post("/:id/reject", auth.RequireRole(domain.RoleAdmin), cfg.Submissions.Reject)
}

// protocolHandler adapts the stream protocol to the network transport:
// each POST carries exactly one JSON-RPC message and receives its
// response, scoped to that request. Notifications get 202 and no body.
func protocolHandler(server *mcp.Server) fiber.Handler {
	return func(c *fiber.Ctx) error {
		response := server.HandleMessage(c.UserContext(), c.Body())
		if response == nil {
			c.Status(fiber.StatusAccepted)
			return nil
		}
		c.Set("Content-Type", "application/json")
		return c.Send(response)
	}
}
