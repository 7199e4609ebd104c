package services

import (
	"context"
	"errors"
	"log"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/config"
	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

// DriverChecker is what assignment creation asks of the work session manager.
type DriverChecker interface {
	CheckAvailability(ctx context.Context, driverID string) (*AvailabilityReport, error)
	CheckEligibility(ctx context.Context, driverID string) (*EligibilityReport, error)
}

// CreateAssignmentRequest asks for a driver to fill one role on a trip.
// Amounts and locations default to the staffing request when omitted.
type CreateAssignmentRequest struct {
	TripID        string                  `json:"trip_id"`
	DriverID      string                  `json:"driver_id"`
	Role          models.AssignmentRole   `json:"role"`
	Source        models.AssignmentSource `json:"source"`
	RequestedBy   string                  `json:"requested_by"`
	BaseAmount    *models.Money           `json:"base_amount,omitempty"`
	BonusAmount   *models.Money           `json:"bonus_amount,omitempty"`
	StartLocation *models.Location        `json:"start_location,omitempty"`
	EndLocation   *models.Location        `json:"end_location,omitempty"`
}

func (r CreateAssignmentRequest) validate() error {
	switch {
	case r.TripID == "" || r.DriverID == "":
		return apperr.Validation("trip_id and driver_id are required")
	case !r.Role.Valid():
		return apperr.Validation("role must be MAIN or ASSISTANT, got %q", r.Role)
	case !r.Source.Valid():
		return apperr.Validation("source must be OWNER or BID, got %q", r.Source)
	case r.BaseAmount != nil && *r.BaseAmount < 0, r.BonusAmount != nil && *r.BonusAmount < 0:
		return apperr.Validation("amounts must not be negative")
	}
	return nil
}

// AssignmentService is the assignment state machine. Only it writes assignment rows.
type AssignmentService struct {
	store      storage.Store
	drivers    DriverChecker
	licenses   LicenseChecker
	acceptance AcceptancePolicy
	publisher  events.Publisher
	policy     config.Policy
	now        Clock
	slotLocks  *keyedMutex
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(store storage.Store, drivers DriverChecker, licenses LicenseChecker, acceptance AcceptancePolicy,
	publisher events.Publisher, policy config.Policy, now Clock) *AssignmentService {
	if licenses == nil {
		licenses = DirectoryLicenseChecker{}
	}
	if acceptance == nil {
		acceptance = OwnerApproval{}
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	if now == nil {
		now = SystemClock
	}
	return &AssignmentService{
		store:      store,
		drivers:    drivers,
		licenses:   licenses,
		acceptance: acceptance,
		publisher:  publisher,
		policy:     policy,
		now:        now,
		slotLocks:  newKeyedMutex(),
	}
}

// CreateAssignment validates the request and reserves a headcount slot.
// OWNER requests are ACCEPTED at once; BID requests start OFFERED and go
// through the acceptance policy.
func (s *AssignmentService) CreateAssignment(ctx context.Context, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if actor, ok := ActorFrom(ctx); ok && actor.Role == ActorDriver {
		if req.Source != models.SourceBid || req.DriverID != actor.ID {
			return nil, apperr.Forbidden("drivers can only bid for themselves")
		}
	}

	trip, err := s.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.Status.AcceptsStaffing() {
		return nil, apperr.InvalidState("trip %s is %s and no longer takes drivers", trip.ID, trip.Status)
	}

	detail, err := s.store.GetStaffingDetail(ctx, req.TripID, req.Role)
	if err != nil {
		return nil, err
	}
	switch req.Source {
	case models.SourceBid:
		post, err := s.store.GetPostTrip(ctx, detail.PostTripID)
		if err != nil {
			return nil, err
		}
		if post.Status != models.PostTripOpen {
			return nil, apperr.InvalidState("staffing request %s is closed for bids", post.ID)
		}
	case models.SourceOwner:
		if req.RequestedBy != "" && req.RequestedBy != trip.OwnerID {
			return nil, apperr.Forbidden("only the trip owner can assign drivers directly")
		}
		if err := authorizeTripOwner(ctx, trip, "assign drivers directly"); err != nil {
			return nil, err
		}
	}

	driver, err := s.store.GetDriver(ctx, req.DriverID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.licenses.CheckDriver(ctx, driver, now); err != nil {
		return nil, err
	}

	if existing, err := s.store.FindOpenAssignment(ctx, req.TripID, req.DriverID); err == nil {
		return nil, apperr.Conflict("driver %s already holds assignment %s on trip %s", req.DriverID, existing.ID, req.TripID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err := s.checkDriverCanWork(ctx, req.DriverID, req.TripID); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		TripID:        req.TripID,
		DriverID:      req.DriverID,
		Role:          req.Role,
		Source:        req.Source,
		Status:        models.AssignmentOffered,
		BaseAmount:    detail.PricePerPerson,
		BonusAmount:   detail.BonusPerPerson,
		StartLocation: detail.PickupLocation,
		EndLocation:   detail.DropoffLocation,
	}
	if req.BaseAmount != nil {
		assignment.BaseAmount = *req.BaseAmount
	}
	if req.BonusAmount != nil {
		assignment.BonusAmount = *req.BonusAmount
	}
	if req.StartLocation != nil {
		assignment.StartLocation = *req.StartLocation
	}
	if req.EndLocation != nil {
		assignment.EndLocation = *req.EndLocation
	}
	if req.Source == models.SourceOwner {
		assignment.Status = models.AssignmentAccepted
		assignment.DecidedAt = &now
	}

	unlock := s.slotLocks.Lock(req.TripID + "/" + string(req.Role))
	err = s.store.CreateAssignmentWithinHeadcount(ctx, assignment)
	unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Assignment %s created: driver %s as %s on trip %s (%s, %s)",
		assignment.ID, assignment.DriverID, assignment.Role, assignment.TripID, assignment.Source, assignment.Status)

	if assignment.Status == models.AssignmentAccepted {
		s.emitTransition(ctx, assignment, "", models.AssignmentAccepted, "")
		return assignment, nil
	}
	s.emitTransition(ctx, assignment, "", models.AssignmentOffered, "")

	if s.acceptance.AutoAccept(ctx, trip, assignment) {
		// The policy decides here, not the bidding driver.
		accepted, err := s.applyStatus(ctx, assignment, models.AssignmentAccepted, "")
		if err != nil {
			// The bid stays OFFERED for the owner to decide.
			log.Printf("⚠️  Auto-accept of assignment %s failed: %v", assignment.ID, err)
			return assignment, nil
		}
		return accepted, nil
	}
	return assignment, nil
}

// checkDriverCanWork runs the availability short-circuit, then the hours check.
func (s *AssignmentService) checkDriverCanWork(ctx context.Context, driverID, tripID string) error {
	availability, err := s.drivers.CheckAvailability(ctx, driverID)
	if err != nil {
		return err
	}
	if !availability.Available && availability.ActiveTripID != tripID {
		return apperr.Conflict("driver already on an active trip (%s)", availability.ActiveTripID)
	}
	eligibility, err := s.drivers.CheckEligibility(ctx, driverID)
	if err != nil {
		return err
	}
	if !eligibility.Eligible {
		return apperr.Rejected("%s", eligibility.Reason)
	}
	return nil
}

// ChangeAssignmentStatus applies an explicit status change.
//
//	OFFERED  -> ACCEPTED   owner approves (driver re-checked)
//	OFFERED  -> REJECTED   owner declines
//	OFFERED  -> CANCELLED  driver withdraws, or the owner drops the bid
//	ACCEPTED -> CANCELLED  owner, only before the trip reaches the configured cut-off
//
// COMPLETED is reached only when the trip completes. Ops may make any legal move.
func (s *AssignmentService) ChangeAssignmentStatus(ctx context.Context, assignmentID string, to models.AssignmentStatus, reason string) (*models.Assignment, error) {
	if assignmentID == "" {
		return nil, apperr.Validation("assignment id is required")
	}
	if !to.Valid() {
		return nil, apperr.Validation("unknown assignment status %q", to)
	}
	a, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeChange(ctx, a, to); err != nil {
		return nil, err
	}
	return s.applyStatus(ctx, a, to, reason)
}

// authorizeChange checks the caller against the move. Only withdrawing a
// bid is open to the driver; every other decision belongs to the owner.
func (s *AssignmentService) authorizeChange(ctx context.Context, a *models.Assignment, to models.AssignmentStatus) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.Role == ActorOps {
		return nil
	}
	if actor.Role == ActorDriver {
		if a.Status == models.AssignmentOffered && to == models.AssignmentCancelled && actor.ID == a.DriverID {
			return nil
		}
		return apperr.Forbidden("drivers can only withdraw their own bids")
	}
	trip, err := s.store.GetTrip(ctx, a.TripID)
	if err != nil {
		return err
	}
	return authorizeTripOwner(ctx, trip, "decide its assignments")
}

func (s *AssignmentService) applyStatus(ctx context.Context, a *models.Assignment, to models.AssignmentStatus, reason string) (*models.Assignment, error) {
	from := a.Status
	switch {
	case from == models.AssignmentOffered && to == models.AssignmentAccepted:
		trip, err := s.store.GetTrip(ctx, a.TripID)
		if err != nil {
			return nil, err
		}
		if trip.Status.Terminal() {
			return nil, apperr.InvalidState("trip %s is %s", trip.ID, trip.Status)
		}
		driver, err := s.store.GetDriver(ctx, a.DriverID)
		if err != nil {
			return nil, err
		}
		if err := s.licenses.CheckDriver(ctx, driver, s.now().UTC()); err != nil {
			return nil, err
		}
		if err := s.checkDriverCanWork(ctx, a.DriverID, a.TripID); err != nil {
			return nil, err
		}
	case from == models.AssignmentOffered && (to == models.AssignmentRejected || to == models.AssignmentCancelled):
	case from == models.AssignmentAccepted && to == models.AssignmentCancelled:
		trip, err := s.store.GetTrip(ctx, a.TripID)
		if err != nil {
			return nil, err
		}
		if cutoff := s.policy.CancelAcceptedBefore; trip.Status.Rank() >= cutoff.Rank() {
			return nil, apperr.InvalidTransition("trip %s is already %s; accepted assignments can only be cancelled before %s",
				trip.ID, trip.Status, cutoff)
		}
	case from == models.AssignmentAccepted && to == models.AssignmentCompleted:
		return nil, apperr.InvalidTransition("assignments complete together with their trip")
	default:
		return nil, apperr.InvalidTransition("assignment %s cannot move from %s to %s", a.ID, from, to)
	}

	return s.transition(ctx, a, to, reason)
}

func (s *AssignmentService) transition(ctx context.Context, a *models.Assignment, to models.AssignmentStatus, reason string) (*models.Assignment, error) {
	from := a.Status
	at := s.now().UTC()
	if err := s.store.UpdateAssignmentStatus(ctx, a.ID, from, to, at, reason); err != nil {
		return nil, err
	}
	a.Status = to
	a.DecidedAt = &at
	if reason != "" {
		a.CancelReason = reason
	}
	log.Printf("🔄 Assignment %s: %s -> %s", a.ID, from, to)
	s.emitTransition(ctx, a, from, to, reason)
	return a, nil
}

func (s *AssignmentService) emitTransition(ctx context.Context, a *models.Assignment, from, to models.AssignmentStatus, reason string) {
	var eventType events.Type
	switch to {
	case models.AssignmentOffered:
		eventType = events.AssignmentOffered
	case models.AssignmentAccepted:
		eventType = events.AssignmentAccepted
	case models.AssignmentRejected:
		eventType = events.AssignmentRejected
	case models.AssignmentCancelled:
		eventType = events.AssignmentCancelled
	case models.AssignmentCompleted:
		eventType = events.AssignmentCompleted
	default:
		return
	}
	at := s.now().UTC()
	if a.DecidedAt != nil {
		at = *a.DecidedAt
	}
	emit(ctx, s.publisher, events.Event{
		Type:         eventType,
		OccurredAt:   at,
		TripID:       a.TripID,
		DriverID:     a.DriverID,
		AssignmentID: a.ID,
		Role:         string(a.Role),
		From:         string(from),
		To:           string(to),
		Reason:       reason,
	})
}

// GetAssignment returns one assignment.
func (s *AssignmentService) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	if id == "" {
		return nil, apperr.Validation("assignment id is required")
	}
	return s.store.GetAssignment(ctx, id)
}

// ListTripAssignments returns every assignment of the trip, oldest first.
func (s *AssignmentService) ListTripAssignments(ctx context.Context, tripID string) ([]*models.Assignment, error) {
	if tripID == "" {
		return nil, apperr.Validation("trip id is required")
	}
	if _, err := s.store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.store.ListAssignmentsByTrip(ctx, tripID)
}

// onTripCompleted completes accepted assignments and drops pending bids.
func (s *AssignmentService) onTripCompleted(ctx context.Context, e events.Event) error {
	open, err := s.store.ListAssignmentsByTrip(ctx, e.TripID, models.NonTerminalAssignmentStatuses...)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range open {
		to, reason := models.AssignmentCompleted, ""
		if a.Status == models.AssignmentOffered {
			to, reason = models.AssignmentCancelled, "trip completed"
		}
		if _, err := s.transition(ctx, a, to, reason); err != nil && !errors.Is(err, apperr.ErrConflict) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onTripClosed cancels every open assignment of a cancelled or deleted trip.
func (s *AssignmentService) onTripClosed(ctx context.Context, e events.Event) error {
	if e.Type == events.TripStatusChanged && e.To != string(models.TripDeleted) {
		return nil
	}
	open, err := s.store.ListAssignmentsByTrip(ctx, e.TripID, models.NonTerminalAssignmentStatuses...)
	if err != nil {
		return err
	}
	reason := "trip cancelled"
	if e.To == string(models.TripDeleted) {
		reason = "trip deleted"
	}
	var errs []error
	for _, a := range open {
		if _, err := s.transition(ctx, a, models.AssignmentCancelled, reason); err != nil && !errors.Is(err, apperr.ErrConflict) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
