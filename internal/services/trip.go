package services

import (
	"context"
	"log"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

// TripLifecycle moves trips forward. Staffing changes can only push a trip
// towards READY_FOR_CONTRACT, never back.
type TripLifecycle struct {
	store     storage.Store
	publisher events.Publisher
	now       Clock
	tripLocks *keyedMutex
}

// NewTripLifecycle creates a new trip lifecycle
func NewTripLifecycle(store storage.Store, publisher events.Publisher, now Clock) *TripLifecycle {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if now == nil {
		now = SystemClock
	}
	return &TripLifecycle{
		store:     store,
		publisher: publisher,
		now:       now,
		tripLocks: newKeyedMutex(),
	}
}

// AdvanceTrip applies an explicit status change requested by the owner or operations.
func (t *TripLifecycle) AdvanceTrip(ctx context.Context, tripID string, to models.TripStatus, reason string) (*models.Trip, error) {
	if tripID == "" {
		return nil, apperr.Validation("trip id is required")
	}
	if !to.Valid() {
		return nil, apperr.Validation("unknown trip status %q", to)
	}

	unlock := t.tripLocks.Lock(tripID)
	trip, err := t.store.GetTrip(ctx, tripID)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := authorizeTripOwner(ctx, trip, "change its status"); err != nil {
		unlock()
		return nil, err
	}
	from := trip.Status
	if !models.CanTransition(from, to) {
		unlock()
		return nil, apperr.InvalidTransition("trip %s cannot move from %s to %s", tripID, from, to)
	}
	if to == models.TripReadyForContract {
		staffing, err := t.staffing(ctx, trip)
		if err != nil {
			unlock()
			return nil, err
		}
		if !staffing.FullyStaffed {
			unlock()
			return nil, apperr.InvalidState("trip %s is not fully staffed yet", tripID)
		}
	}
	if err := t.store.UpdateTripStatus(ctx, tripID, from, to); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	trip.Status = to
	t.announce(ctx, trip, from, reason)
	return trip, nil
}

// StaffingStatus reports required against held headcount per role.
func (t *TripLifecycle) StaffingStatus(ctx context.Context, tripID string) (*models.StaffingStatus, error) {
	if tripID == "" {
		return nil, apperr.Validation("trip id is required")
	}
	trip, err := t.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return t.staffing(ctx, trip)
}

func (t *TripLifecycle) staffing(ctx context.Context, trip *models.Trip) (*models.StaffingStatus, error) {
	details, err := t.store.ListStaffingDetails(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	open, err := t.store.ListAssignmentsByTrip(ctx, trip.ID, models.NonTerminalAssignmentStatuses...)
	if err != nil {
		return nil, err
	}

	status := &models.StaffingStatus{
		TripID:       trip.ID,
		TripStatus:   trip.Status,
		Roles:        make([]models.RoleStaffing, 0, len(details)),
		FullyStaffed: len(details) > 0,
	}
	for _, d := range details {
		role := models.RoleStaffing{Role: d.Role, Required: d.RequiredCount}
		for _, a := range open {
			if a.Role != d.Role {
				continue
			}
			switch a.Status {
			case models.AssignmentAccepted:
				role.Accepted++
			case models.AssignmentOffered:
				role.Offered++
			}
		}
		if role.Accepted < role.Required {
			status.FullyStaffed = false
		}
		status.Roles = append(status.Roles, role)
	}
	return status, nil
}

// onStaffingChanged reacts to new offers and acceptances.
func (t *TripLifecycle) onStaffingChanged(ctx context.Context, e events.Event) error {
	unlock := t.tripLocks.Lock(e.TripID)
	trip, err := t.store.GetTrip(ctx, e.TripID)
	if err != nil {
		unlock()
		return err
	}
	from := trip.Status
	if from != models.TripCreated && from != models.TripLookingForDriver {
		unlock()
		return nil
	}

	staffing, err := t.staffing(ctx, trip)
	if err != nil {
		unlock()
		return err
	}
	to := from
	switch {
	case staffing.FullyStaffed:
		to = models.TripReadyForContract
	case from == models.TripCreated:
		to = models.TripLookingForDriver
	}
	if to == from {
		unlock()
		return nil
	}
	if err := t.store.UpdateTripStatus(ctx, trip.ID, from, to); err != nil {
		unlock()
		return err
	}
	unlock()

	trip.Status = to
	t.announce(ctx, trip, from, "staffing changed")
	return nil
}

func (t *TripLifecycle) announce(ctx context.Context, trip *models.Trip, from models.TripStatus, reason string) {
	log.Printf("🚚 Trip %s: %s -> %s", trip.ID, from, trip.Status)
	e := events.Event{
		Type:       events.TripStatusChanged,
		OccurredAt: t.now().UTC(),
		TripID:     trip.ID,
		From:       string(from),
		To:         string(trip.Status),
		Reason:     reason,
	}
	emit(ctx, t.publisher, e)

	switch trip.Status {
	case models.TripCompleted:
		e.Type = events.TripCompleted
		emit(ctx, t.publisher, e)
	case models.TripCancelled:
		e.Type = events.TripCancelled
		emit(ctx, t.publisher, e)
	}
}
