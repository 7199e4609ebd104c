package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SessionHandler handles work session and driver hours requests
type SessionHandler struct {
	sessions *services.WorkSessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.WorkSessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type startSessionRequest struct {
	DriverID string `json:"driver_id"`
	TripID   string `json:"trip_id"`
}

// Start handles POST /api/sessions
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session, err := h.sessions.StartSession(requestContext(c), req.DriverID, req.TripID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// End handles POST /api/sessions/:id/end
func (h *SessionHandler) End(c *fiber.Ctx) error {
	session, err := h.sessions.EndSession(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(session)
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/sessions/:id/cancel
func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	var req cancelSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	session, err := h.sessions.CancelSession(requestContext(c), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(session)
}

// Eligibility handles GET /api/drivers/:id/eligibility
func (h *SessionHandler) Eligibility(c *fiber.Ctx) error {
	report, err := h.sessions.CheckEligibility(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// Availability handles GET /api/drivers/:id/availability
func (h *SessionHandler) Availability(c *fiber.Ctx) error {
	report, err := h.sessions.CheckAvailability(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// History handles GET /api/drivers/:id/sessions
func (h *SessionHandler) History(c *fiber.Ctx) error {
	filter, err := historyFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	page, err := h.sessions.GetHistory(requestContext(c), c.Params("id"), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// Export handles GET /api/drivers/:id/sessions/export
func (h *SessionHandler) Export(c *fiber.Ctx) error {
	filter, err := historyFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	driverID := c.Params("id")
	data, err := h.sessions.ExportHistory(requestContext(c), driverID, filter)
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="sessions-%s.xlsx"`, driverID))
	return c.Send(data)
}

type importRequest struct {
	Sessions []models.ImportedSession `json:"sessions"`
}

// Import handles POST /api/drivers/:id/sessions/import
func (h *SessionHandler) Import(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	imported, err := h.sessions.ImportHistory(requestContext(c), c.Params("id"), req.Sessions)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"imported": len(imported),
		"sessions": imported,
	})
}

// CurrentSession handles GET /api/trips/:id/current-session
func (h *SessionHandler) CurrentSession(c *fiber.Ctx) error {
	session, err := h.sessions.GetCurrentSessionInTrip(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(session)
}

func historyFilter(c *fiber.Ctx) (models.SessionHistoryFilter, error) {
	filter := models.SessionHistoryFilter{
		Status:      models.WorkSessionStatus(c.Query("status")),
		TripID:      c.Query("trip_id"),
		Page:        c.QueryInt("page", 0),
		PageSize:    c.QueryInt("page_size", 0),
		OldestFirst: c.QueryBool("oldest_first", false),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperr.Validation("%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = &t
	}
	return filter, nil
}
