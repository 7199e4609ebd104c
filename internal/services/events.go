package services

import (
	"context"
	"log"

	"github.com/Ananth-NQI/truckpe-crew/internal/events"
)

// emit publishes a fact that is already persisted. Subscriber failures are
// logged; they never undo the write that produced the event.
func emit(ctx context.Context, publisher events.Publisher, e events.Event) {
	if err := publisher.Publish(ctx, e); err != nil {
		log.Printf("⚠️  Event %s for trip %s: %v", e.Type, e.TripID, err)
	}
}

// Wire subscribes the state machines to each other's events.
func Wire(bus *events.Bus, sessions *WorkSessionManager, assignments *AssignmentService, trips *TripLifecycle) {
	bus.Subscribe(trips.onStaffingChanged, events.AssignmentOffered, events.AssignmentAccepted)
	bus.Subscribe(sessions.onAssignmentCancelled, events.AssignmentCancelled)
	bus.Subscribe(assignments.onTripCompleted, events.TripCompleted)
	bus.Subscribe(assignments.onTripClosed, events.TripCancelled, events.TripStatusChanged)
}
