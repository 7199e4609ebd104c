package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/services"
)

// TripHandler handles trip lifecycle requests
type TripHandler struct {
	trips *services.TripLifecycle
}

// NewTripHandler creates a new trip handler
func NewTripHandler(trips *services.TripLifecycle) *TripHandler {
	return &TripHandler{trips: trips}
}

// Staffing handles GET /api/trips/:id/staffing
func (h *TripHandler) Staffing(c *fiber.Ctx) error {
	status, err := h.trips.StaffingStatus(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

type tripStatusRequest struct {
	Status models.TripStatus `json:"status"`
	Reason string            `json:"reason"`
}

// UpdateStatus handles POST /api/trips/:id/status
func (h *TripHandler) UpdateStatus(c *fiber.Ctx) error {
	var req tripStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	trip, err := h.trips.AdvanceTrip(requestContext(c), c.Params("id"), req.Status, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(trip)
}
