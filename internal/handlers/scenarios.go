package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/scheduling"
)

// ScenarioRequest describes a haul to evaluate.
type ScenarioRequest struct {
	DistanceKm   float64   `json:"distance_km"`
	DriveHours   float64   `json:"drive_hours"`
	PickupTime   time.Time `json:"pickup_time"`
	DeadlineTime time.Time `json:"deadline_time"`
}

// ComputeScenarios handles POST /api/scenarios
func ComputeScenarios(c *fiber.Ctx) error {
	var req ScenarioRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	plan, err := scheduling.ComputeScenarios(req.DistanceKm, req.DriveHours, req.PickupTime, req.DeadlineTime)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(plan)
}
