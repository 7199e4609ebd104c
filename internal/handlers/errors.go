package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/middleware"
	"github.com/Ananth-NQI/truckpe-crew/internal/services"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "5"

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalidState, apperr.KindInvalidTransition:
		return fiber.StatusConflict
	case apperr.KindRejected:
		return fiber.StatusUnprocessableEntity
	case apperr.KindUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondError writes err as {"error", "kind"}. Internal failures are logged
// and their details kept out of the response.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	message := apperr.Message(err)
	switch status {
	case fiber.StatusInternalServerError:
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		message = "Internal server error"
	case fiber.StatusServiceUnavailable:
		log.Printf("⚠️  %s %s: %v", c.Method(), c.Path(), err)
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"kind":  kind,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"kind":  apperr.KindValidation,
	})
}

// requestContext carries the authenticated caller into the services.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	id := middleware.CallerID(c)
	if id == "" {
		return ctx
	}
	return services.WithActor(ctx, services.Actor{ID: id, Role: middleware.CallerRole(c)})
}
