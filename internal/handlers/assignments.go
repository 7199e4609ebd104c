package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/middleware"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/services"
)

// AssignmentHandler handles staffing requests
type AssignmentHandler struct {
	assignments *services.AssignmentService
}

// NewAssignmentHandler creates a new assignment handler
func NewAssignmentHandler(assignments *services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// AssignDriver handles POST /api/trips/:id/assignments (owner picks a driver)
func (h *AssignmentHandler) AssignDriver(c *fiber.Ctx) error {
	return h.create(c, models.SourceOwner)
}

// Bid handles POST /api/trips/:id/bids (driver applies)
func (h *AssignmentHandler) Bid(c *fiber.Ctx) error {
	return h.create(c, models.SourceBid)
}

func (h *AssignmentHandler) create(c *fiber.Ctx, source models.AssignmentSource) error {
	var req services.CreateAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.TripID = c.Params("id")
	req.Source = source

	switch middleware.CallerRole(c) {
	case middleware.RoleOwner:
		req.RequestedBy = middleware.CallerID(c)
	case middleware.RoleDriver:
		if req.DriverID == "" {
			req.DriverID = middleware.CallerID(c)
		}
		req.RequestedBy = ""
	case middleware.RoleOps:
		req.RequestedBy = ""
	}

	assignment, err := h.assignments.CreateAssignment(requestContext(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(assignment)
}

// ListForTrip handles GET /api/trips/:id/assignments
func (h *AssignmentHandler) ListForTrip(c *fiber.Ctx) error {
	list, err := h.assignments.ListTripAssignments(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"assignments": list,
		"count":       len(list),
	})
}

// Get handles GET /api/assignments/:id
func (h *AssignmentHandler) Get(c *fiber.Ctx) error {
	assignment, err := h.assignments.GetAssignment(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(assignment)
}

type assignmentStatusRequest struct {
	Status models.AssignmentStatus `json:"status"`
	Reason string                  `json:"reason"`
}

// UpdateStatus handles POST /api/assignments/:id/status
func (h *AssignmentHandler) UpdateStatus(c *fiber.Ctx) error {
	var req assignmentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	assignment, err := h.assignments.ChangeAssignmentStatus(requestContext(c), c.Params("id"), req.Status, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(assignment)
}
