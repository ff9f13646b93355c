package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/api/http/handlers"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Intake         *handlers.IntakeHandler
	Appeals        *handlers.AppealsHandler
	Operators      *handlers.OperatorsHandler
	Devices        *handlers.DevicesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/operators/login", cfg.Operators.Login)
	authGroup.Post("/integrations/token", cfg.AuthMiddleware.Handle, auth.RequirePrivileged(), cfg.Operators.IssueIntegrationToken)

	intake := app.Group("/intake", cfg.AuthMiddleware.Handle, auth.RequireIntegration())
	intake.Post("/appeals", cfg.Intake.SubmitAppeal)
	intake.Post("/appeals/:id/respond", cfg.Intake.RespondToAppeal)
	intake.Get("/requesters/:id/appeals", cfg.Intake.ListRequesterAppeals)

	requireOperator := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireOperator()}

	appeals := app.Group("/appeals", requireOperator...)
	appeals.Get("/", cfg.Appeals.ListAppeals)
	appeals.Get("/:id", cfg.Appeals.GetAppeal)
	appeals.Post("/:id/claim", cfg.Appeals.Claim)
	appeals.Post("/:id/respond", cfg.Appeals.Respond)
	appeals.Post("/:id/postpone", cfg.Appeals.Postpone)
	appeals.Post("/:id/delegate", cfg.Appeals.Delegate)
	appeals.Post("/:id/close", cfg.Appeals.Close)
	appeals.Post("/:id/reject", cfg.Appeals.Reject)
	appeals.Post("/:id/specialist", cfg.Appeals.RequestSpecialist)
	appeals.Post("/:id/replacement", cfg.Appeals.MarkReplacement)
	appeals.Post("/:id/replacement/complete", cfg.Appeals.CompleteReplacement)

	devices := app.Group("/devices", requireOperator...)
	devices.Get("/", cfg.Devices.ListDevices)
	devices.Post("/import", auth.RequirePrivileged(), cfg.Devices.ImportDevices)
	devices.Get("/:serial", cfg.Devices.GetDevice)

	operators := app.Group("/operators", requireOperator...)
	operators.Get("/", cfg.Operators.ListOperators)
	operators.Post("/", auth.RequirePrivileged(), cfg.Operators.CreateOperator)
}
