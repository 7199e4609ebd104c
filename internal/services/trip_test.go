package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

func TestAdvanceTripRules(t *testing.T) {
	f := newFixture(t, nil)
	f.addTrip(t, "T1", 1, 0)

	if _, err := f.trips.AdvanceTrip(f.ctx, "T1", models.TripReadyForContract, ""); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("unstaffed trip cannot be READY_FOR_CONTRACT, got %v", err)
	}
	if _, err := f.trips.AdvanceTrip(f.ctx, "T1", models.TripInTransit, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("skipping ahead must fail, got %v", err)
	}
	if _, err := f.trips.AdvanceTrip(f.ctx, "T1", "FLYING", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown status must fail validation, got %v", err)
	}
	if _, err := f.trips.AdvanceTrip(f.ctx, "T9", models.TripCancelled, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	trip, err := f.trips.AdvanceTrip(f.ctx, "T1", models.TripLookingForDriver, "")
	if err != nil {
		t.Fatal(err)
	}
	if trip.Status != models.TripLookingForDriver {
		t.Fatalf("unexpected status %s", trip.Status)
	}
	if _, err := f.trips.AdvanceTrip(f.ctx, "T1", models.TripCreated, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("trips never move backwards, got %v", err)
	}
}

func TestTripCompletionCompletesAssignments(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "D1")
	f.addDriver(t, "D2")
	f.addDriver(t, "D3")
	f.addTrip(t, "T1", 1, 2)

	main := f.assign(t, "T1", "D1", models.RoleMain, models.SourceOwner)
	helper := f.assign(t, "T1", "D2", models.RoleAssistant, models.SourceOwner)
	pending := f.assign(t, "T1", "D3", models.RoleAssistant, models.SourceBid)
	if _, err := f.assignments.ChangeAssignmentStatus(f.ctx, pending.ID, models.AssignmentAccepted, ""); err != nil {
		t.Fatal(err)
	}
	if got := f.tripStatus(t, "T1"); got != models.TripReadyForContract {
		t.Fatalf("expected READY_FOR_CONTRACT, got %s", got)
	}

	f.advance(t, "T1",
		models.TripAwaitingContractSignature,
		models.TripVehicleHandover,
		models.TripLoading,
		models.TripInTransit,
		models.TripUnloading,
		models.TripDelivered,
		models.TripReturningVehicle,
		models.TripCompleted,
	)

	for _, id := range []string{main.ID, helper.ID, pending.ID} {
		a, err := f.assignments.GetAssignment(f.ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if a.Status != models.AssignmentCompleted {
			t.Fatalf("assignment %s should be COMPLETED, got %s", id, a.Status)
		}
	}
	if _, err := f.trips.AdvanceTrip(f.ctx, "T1", models.TripCancelled, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("completed trip cannot be cancelled, got %v", err)
	}
}

func TestTripCancellationCascades(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "D1")
	f.addDriver(t, "D2")
	f.addTrip(t, "T1", 1, 1)

	accepted := f.assign(t, "T1", "D1", models.RoleMain, models.SourceOwner)
	offered := f.assign(t, "T1", "D2", models.RoleAssistant, models.SourceBid)
	session, err := f.sessions.StartSession(f.ctx, "D1", "T1")
	if err != nil {
		t.Fatal(err)
	}

	f.advance(t, "T1", models.TripCancelled)

	for _, id := range []string{accepted.ID, offered.ID} {
		a, _ := f.assignments.GetAssignment(f.ctx, id)
		if a.Status != models.AssignmentCancelled || a.CancelReason != "trip cancelled" {
			t.Fatalf("assignment %s should be cancelled with the trip, got %+v", id, a)
		}
	}
	s, _ := f.store.GetSession(f.ctx, session.ID)
	if s.Status != models.SessionCancelled {
		t.Fatalf("running session should be cancelled with the trip, got %s", s.Status)
	}

	f.advance(t, "T1", models.TripDeleted)
	if got := f.tripStatus(t, "T1"); got != models.TripDeleted {
		t.Fatalf("expected DELETED, got %s", got)
	}
}

func TestTripDeletionCancelsBids(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "D1")
	f.addTrip(t, "T1", 1, 0)

	bid := f.assign(t, "T1", "D1", models.RoleMain, models.SourceBid)
	f.advance(t, "T1", models.TripDeleted)

	a, _ := f.assignments.GetAssignment(f.ctx, bid.ID)
	if a.Status != models.AssignmentCancelled || a.CancelReason != "trip deleted" {
		t.Fatalf("bid should be cancelled when the trip is deleted, got %+v", a)
	}
}

func TestTripEventsArePublished(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "D1")
	f.addTrip(t, "T1", 1, 0)

	var seen []events.Type
	f.bus.SubscribeAll(func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type)
		return nil
	})

	f.assign(t, "T1", "D1", models.RoleMain, models.SourceOwner)
	// An observer of every event sees the acceptance before the trip change it causes.
	want := []events.Type{events.AssignmentAccepted, events.TripStatusChanged}
	if len(seen) != len(want) {
		t.Fatalf("expected events %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, seen)
		}
	}
	if got := f.tripStatus(t, "T1"); got != models.TripReadyForContract {
		t.Fatalf("expected READY_FOR_CONTRACT, got %s", got)
	}
}
