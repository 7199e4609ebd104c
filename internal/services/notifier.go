package services

import (
	"context"
	"log"
	"strings"

	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

// Notification is one WhatsApp message waiting to be sent.
type Notification struct {
	To       string
	Template string
	Params   map[string]string
}

// Dispatcher queues notifications for delivery off the request path.
type Dispatcher interface {
	Enqueue(n Notification) bool
}

// NotifierEvents are the events the AssignmentNotifier reacts to.
var NotifierEvents = []events.Type{
	events.AssignmentOffered,
	events.AssignmentAccepted,
	events.AssignmentRejected,
	events.AssignmentCancelled,
	events.TripStatusChanged,
}

// AssignmentNotifier turns staffing events into WhatsApp messages for
// drivers and owners. Delivery is fire-and-forget.
type AssignmentNotifier struct {
	store      storage.Store
	dispatcher Dispatcher
}

// NewAssignmentNotifier creates a new assignment notifier
func NewAssignmentNotifier(store storage.Store, dispatcher Dispatcher) *AssignmentNotifier {
	return &AssignmentNotifier{store: store, dispatcher: dispatcher}
}

// Handle is an events.Handler. Lookup failures are logged and swallowed.
func (n *AssignmentNotifier) Handle(ctx context.Context, e events.Event) error {
	note, ok := n.build(ctx, e)
	if !ok {
		return nil
	}
	if !n.dispatcher.Enqueue(note) {
		log.Printf("⚠️  Notification queue full, dropped %s for trip %s", note.Template, e.TripID)
	}
	return nil
}

func (n *AssignmentNotifier) build(ctx context.Context, e events.Event) (Notification, bool) {
	if e.Type == events.TripStatusChanged && e.To != string(models.TripReadyForContract) {
		return Notification{}, false
	}

	trip, err := n.store.GetTrip(ctx, e.TripID)
	if err != nil {
		log.Printf("⚠️  Notification for %s skipped: %v", e.Type, err)
		return Notification{}, false
	}
	title := trip.Title
	if title == "" {
		title = "trip " + trip.ID
	}

	if e.Type == events.TripStatusChanged {
		return n.owner(trip, TemplateTripFullyStaffed, map[string]string{"trip_title": title})
	}

	driver, err := n.store.GetDriver(ctx, e.DriverID)
	if err != nil {
		log.Printf("⚠️  Notification for %s skipped: %v", e.Type, err)
		return Notification{}, false
	}
	role := strings.ToLower(e.Role)

	switch e.Type {
	case events.AssignmentOffered:
		return n.owner(trip, TemplateBidReceived, map[string]string{
			"driver_name": driver.Name,
			"role":        role,
			"trip_title":  title,
		})
	case events.AssignmentAccepted:
		amount := "as agreed"
		if a, err := n.store.GetAssignment(ctx, e.AssignmentID); err == nil {
			amount = (a.BaseAmount + a.BonusAmount).String()
		}
		return n.driver(driver, TemplateAssignmentConfirmed, map[string]string{
			"driver_name": driver.Name,
			"role":        role,
			"trip_title":  title,
			"amount":      amount,
		})
	case events.AssignmentRejected:
		return n.driver(driver, TemplateBidDeclined, map[string]string{
			"driver_name": driver.Name,
			"trip_title":  title,
		})
	case events.AssignmentCancelled:
		reason := e.Reason
		if reason == "" {
			reason = "no reason given"
		}
		return n.driver(driver, TemplateAssignmentCancelled, map[string]string{
			"driver_name": driver.Name,
			"trip_title":  title,
			"reason":      reason,
		})
	}
	return Notification{}, false
}

func (n *AssignmentNotifier) owner(trip *models.Trip, template string, params map[string]string) (Notification, bool) {
	if trip.OwnerPhone == "" {
		return Notification{}, false
	}
	return Notification{To: trip.OwnerPhone, Template: template, Params: params}, true
}

func (n *AssignmentNotifier) driver(driver *models.Driver, template string, params map[string]string) (Notification, bool) {
	if driver.Phone == "" {
		return Notification{}, false
	}
	return Notification{To: driver.Phone, Template: template, Params: params}, true
}
