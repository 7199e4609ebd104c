package routes

import (
	"github.com/Ananth-NQI/truckpe-crew/internal/handlers"
	"github.com/Ananth-NQI/truckpe-crew/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// NewApp creates the fiber app. Immutable keeps c.Params and c.Query
// strings valid after the handler returns, since services and the memory
// store keep them.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:   name,
		Immutable: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})
}

// Handlers groups everything the router serves.
type Handlers struct {
	Health      *handlers.HealthHandler
	Sessions    *handlers.SessionHandler
	Trips       *handlers.TripHandler
	Assignments *handlers.AssignmentHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers, jwtSecret string) {
	app.Get("/", h.Health.Info)
	app.Get("/health", h.Health.Check)

	// API routes
	api := app.Group("/api", middleware.RequireAuth(jwtSecret))
	owners := middleware.RequireRole(middleware.RoleOwner, middleware.RoleOps)

	api.Post("/scenarios", handlers.ComputeScenarios)

	// Work sessions
	sessions := api.Group("/sessions")
	sessions.Post("/", middleware.RequireRole(middleware.RoleDriver, middleware.RoleOps), h.Sessions.Start)
	sessions.Post("/:id/end", h.Sessions.End)
	sessions.Post("/:id/cancel", middleware.RequireRole(middleware.RoleOps), h.Sessions.Cancel)

	// Driver hours
	drivers := api.Group("/drivers")
	drivers.Get("/:id/eligibility", h.Sessions.Eligibility)
	drivers.Get("/:id/availability", h.Sessions.Availability)
	drivers.Get("/:id/sessions", h.Sessions.History)
	drivers.Get("/:id/sessions/export", h.Sessions.Export)
	drivers.Post("/:id/sessions/import", middleware.RequireRole(middleware.RoleOps), h.Sessions.Import)

	// Trips
	trips := api.Group("/trips")
	trips.Get("/:id/current-session", h.Sessions.CurrentSession)
	trips.Get("/:id/staffing", h.Trips.Staffing)
	trips.Post("/:id/status", owners, h.Trips.UpdateStatus)
	trips.Post("/:id/assignments", owners, h.Assignments.AssignDriver)
	trips.Post("/:id/bids", middleware.RequireRole(middleware.RoleDriver, middleware.RoleOps), h.Assignments.Bid)
	trips.Get("/:id/assignments", h.Assignments.ListForTrip)

	// Assignments
	assignments := api.Group("/assignments")
	assignments.Get("/:id", h.Assignments.Get)
	assignments.Post("/:id/status", h.Assignments.UpdateStatus)
}
