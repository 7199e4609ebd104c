package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/jobs"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

const pingTimeout = 2 * time.Second

// NotificationStatter reports the notification queue.
type NotificationStatter interface {
	Stats() jobs.NotificationStats
}

// tableCounter is implemented by stores that can report row counts.
type tableCounter interface {
	TableCounts(ctx context.Context) (map[string]int64, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version            string
	Environment        string
	StorageType        string
	WhatsAppConfigured bool
	EventExport        bool

	store         storage.Store
	notifications NotificationStatter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, store storage.Store, notifications NotificationStatter) *HealthHandler {
	return &HealthHandler{
		Version:       version,
		store:         store,
		notifications: notifications,
	}
}

// Info returns the service overview served on /
func (h *HealthHandler) Info(c *fiber.Ctx) error {
	response := fiber.Map{
		"service":     "TruckPe Crew Scheduling API",
		"version":     h.Version,
		"environment": h.Environment,
		"storage":     h.StorageType,
		"whatsapp": fiber.Map{
			"configured": h.WhatsAppConfigured,
		},
		"event_export": h.EventExport,
		"endpoints": fiber.Map{
			"health":      "/health",
			"scenarios":   "/api/scenarios",
			"sessions":    "/api/sessions",
			"drivers":     "/api/drivers/:id",
			"trips":       "/api/trips/:id",
			"assignments": "/api/assignments/:id",
		},
	}
	if h.notifications != nil {
		response["notifications"] = h.notifications.Stats()
	}

	// Add table counts when the store is a database
	if counter, ok := h.store.(tableCounter); ok {
		ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
		defer cancel()
		counts, err := counter.TableCounts(ctx)
		if err != nil {
			response["database"] = fiber.Map{"status": "error: " + err.Error()}
		} else {
			response["database"] = fiber.Map{"status": "connected", "tables": counts}
		}
	}
	return c.JSON(response)
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK

	ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
	defer cancel()
	storageHealthy := h.store.Ping(ctx) == nil
	if !storageHealthy {
		status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	}

	notificationsRunning := false
	if h.notifications != nil {
		notificationsRunning = h.notifications.Stats().Running
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":  status,
		"version": h.Version,
		"services": fiber.Map{
			"storage":       storageHealthy,
			"whatsapp":      h.WhatsAppConfigured,
			"notifications": notificationsRunning,
		},
	})
}
