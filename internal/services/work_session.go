package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/config"
	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
	"github.com/Ananth-NQI/truckpe-crew/internal/timeutil"
)

// MaxImportBatch caps a single history import.
const MaxImportBatch = 1000

// EligibilityReport is the hour-of-service capacity of a driver at EvaluatedAt.
type EligibilityReport struct {
	DriverID       string    `json:"driver_id"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
	WindowStart    time.Time `json:"window_start"`
	WindowHours    float64   `json:"window_hours"`
	CapHours       float64   `json:"cap_hours"`
	ConsumedHours  float64   `json:"consumed_hours"`
	RemainingHours float64   `json:"remaining_hours"`
	Eligible       bool      `json:"eligible"`
	Reason         string    `json:"reason"`
}

// AvailabilityReport tells whether a driver is free of any active session.
type AvailabilityReport struct {
	DriverID        string                    `json:"driver_id"`
	Available       bool                      `json:"available"`
	ActiveSessionID string                    `json:"active_session_id,omitempty"`
	ActiveTripID    string                    `json:"active_trip_id,omitempty"`
	Since           *time.Time                `json:"since,omitempty"`
	Availability    models.DriverAvailability `json:"availability"`
}

// WorkSessionManager owns the one-active-session-per-driver rule and the
// driving-hours eligibility check. It is the only writer of work sessions.
type WorkSessionManager struct {
	store       storage.Store
	publisher   events.Publisher
	policy      config.Policy
	now         Clock
	driverLocks *keyedMutex
}

// NewWorkSessionManager creates a new work session manager
func NewWorkSessionManager(store storage.Store, publisher events.Publisher, policy config.Policy, now Clock) *WorkSessionManager {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if now == nil {
		now = SystemClock
	}
	return &WorkSessionManager{
		store:       store,
		publisher:   publisher,
		policy:      policy,
		now:         now,
		driverLocks: newKeyedMutex(),
	}
}

// StartSession opens an ACTIVE session for the driver on the trip.
func (m *WorkSessionManager) StartSession(ctx context.Context, driverID, tripID string) (*models.WorkSession, error) {
	if driverID == "" || tripID == "" {
		return nil, apperr.Validation("driver_id and trip_id are required")
	}
	if actor, ok := ActorFrom(ctx); ok && actor.Role == ActorDriver && actor.ID != driverID {
		return nil, apperr.Forbidden("drivers can only start their own sessions")
	}

	driver, err := m.store.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.Suspended || driver.Availability == models.DriverSuspended {
		return nil, apperr.Rejected("driver %s is suspended", driverID)
	}
	trip, err := m.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Status.Terminal() {
		return nil, apperr.InvalidState("trip %s is %s", tripID, trip.Status)
	}

	unlock := m.driverLocks.Lock(driverID)
	session := &models.WorkSession{
		DriverID:  driverID,
		TripID:    tripID,
		StartTime: m.now().UTC(),
		Source:    models.SessionSourceLive,
	}
	if err := m.store.CreateActiveSession(ctx, session); err != nil {
		unlock()
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("driver already on an active trip: %s", apperr.Message(err))
		}
		return nil, err
	}
	if err := m.store.UpdateDriverAvailability(ctx, driverID, models.DriverOnTrip); err != nil {
		log.Printf("⚠️  Session %s started but driver %s availability not updated: %v", session.ID, driverID, err)
	}
	unlock()

	log.Printf("✅ Work session %s started: driver %s on trip %s", session.ID, driverID, tripID)
	emit(ctx, m.publisher, events.Event{
		Type:       events.SessionStarted,
		OccurredAt: session.StartTime,
		TripID:     tripID,
		DriverID:   driverID,
		SessionID:  session.ID,
	})
	return session, nil
}

// EndSession completes an ACTIVE session at the current time. The driver
// of the session, the trip owner or ops may end it.
func (m *WorkSessionManager) EndSession(ctx context.Context, sessionID string) (*models.WorkSession, error) {
	if err := m.authorizeEnd(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.closeSession(ctx, sessionID, models.SessionCompleted, "")
}

func (m *WorkSessionManager) authorizeEnd(ctx context.Context, sessionID string) error {
	actor, ok := ActorFrom(ctx)
	if !ok || actor.Role == ActorOps || sessionID == "" {
		return nil
	}
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if actor.Role == ActorDriver {
		if actor.ID != session.DriverID {
			return apperr.Forbidden("drivers can only end their own sessions")
		}
		return nil
	}
	trip, err := m.store.GetTrip(ctx, session.TripID)
	if err != nil {
		return err
	}
	return authorizeTripOwner(ctx, trip, "end its sessions")
}

// CancelSession voids an ACTIVE session that should not have been started.
// It is an ops action.
func (m *WorkSessionManager) CancelSession(ctx context.Context, sessionID, reason string) (*models.WorkSession, error) {
	if actor, ok := ActorFrom(ctx); ok && actor.Role != ActorOps {
		return nil, apperr.Forbidden("only operations can cancel work sessions")
	}
	if reason == "" {
		reason = "cancelled by administrator"
	}
	return m.closeSession(ctx, sessionID, models.SessionCancelled, reason)
}

func (m *WorkSessionManager) closeSession(ctx context.Context, sessionID string, to models.WorkSessionStatus, reason string) (*models.WorkSession, error) {
	if sessionID == "" {
		return nil, apperr.Validation("session id is required")
	}
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, apperr.InvalidState("work session %s is already %s", sessionID, session.Status)
	}

	unlock := m.driverLocks.Lock(session.DriverID)
	end := m.now().UTC()
	if end.Before(session.StartTime) {
		end = session.StartTime
	}
	if err := m.store.CloseSession(ctx, sessionID, to, end, reason); err != nil {
		unlock()
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.InvalidState("%s", apperr.Message(err))
		}
		return nil, err
	}
	m.releaseDriver(ctx, session.DriverID)
	unlock()

	session.Status = to
	session.EndTime = &end
	session.CancelReason = reason

	eventType := events.SessionEnded
	if to == models.SessionCancelled {
		eventType = events.SessionCancelled
		log.Printf("🚫 Work session %s cancelled: %s", sessionID, reason)
	} else {
		log.Printf("✅ Work session %s ended after %.2fh", sessionID, session.DurationHours(end))
	}
	emit(ctx, m.publisher, events.Event{
		Type:       eventType,
		OccurredAt: end,
		TripID:     session.TripID,
		DriverID:   session.DriverID,
		SessionID:  session.ID,
		Reason:     reason,
	})
	return session, nil
}

// releaseDriver marks the driver AVAILABLE when no ACTIVE session remains.
func (m *WorkSessionManager) releaseDriver(ctx context.Context, driverID string) {
	_, err := m.store.GetActiveSessionByDriver(ctx, driverID)
	switch {
	case err == nil:
		return
	case !errors.Is(err, apperr.ErrNotFound):
		log.Printf("⚠️  Could not check remaining sessions of driver %s: %v", driverID, err)
		return
	}
	if err := m.store.UpdateDriverAvailability(ctx, driverID, models.DriverAvailable); err != nil {
		log.Printf("⚠️  Driver %s availability not reset: %v", driverID, err)
	}
}

// CheckEligibility sums the driver's driving hours inside the trailing window.
// Sessions still running count up to now; cancelled sessions never count.
func (m *WorkSessionManager) CheckEligibility(ctx context.Context, driverID string) (*EligibilityReport, error) {
	if driverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	if _, err := m.store.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	window := timeutil.TrailingWindow(now, m.policy.Window())
	sessions, err := m.store.ListSessionsSince(ctx, driverID, window.Start)
	if err != nil {
		return nil, err
	}

	consumed := 0.0
	for _, s := range sessions {
		span := timeutil.Interval{Start: s.StartTime, End: s.EffectiveEnd(now)}
		if clipped, ok := span.Clip(window); ok {
			consumed += clipped.Hours()
		}
	}
	return m.eligibilityReport(driverID, now, window, consumed), nil
}

func (m *WorkSessionManager) eligibilityReport(driverID string, now time.Time, window timeutil.Interval, consumed float64) *EligibilityReport {
	capHours := m.policy.MaxDrivingHoursInWindow
	report := &EligibilityReport{
		DriverID:      driverID,
		EvaluatedAt:   now,
		WindowStart:   window.Start,
		WindowHours:   m.policy.EligibilityWindowHours,
		CapHours:      capHours,
		ConsumedHours: timeutil.RoundTo2(consumed),
		Eligible:      consumed < capHours,
	}
	if remaining := capHours - consumed; remaining > 0 {
		report.RemainingHours = timeutil.RoundTo2(remaining)
	}
	if report.Eligible {
		report.Reason = fmt.Sprintf("%.2fh of %gh driven in the last %gh", report.ConsumedHours, capHours, report.WindowHours)
	} else {
		report.Reason = fmt.Sprintf("driver has driven %.2fh in the last %gh, reaching the %gh limit",
			report.ConsumedHours, report.WindowHours, capHours)
	}
	return report
}

// CheckAvailability reports the driver's ACTIVE session, if any.
func (m *WorkSessionManager) CheckAvailability(ctx context.Context, driverID string) (*AvailabilityReport, error) {
	if driverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	driver, err := m.store.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	report := &AvailabilityReport{DriverID: driverID, Availability: driver.Availability}

	active, err := m.store.GetActiveSessionByDriver(ctx, driverID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		report.Available = true
		return report, nil
	case err != nil:
		return nil, err
	}
	start := active.StartTime
	report.ActiveSessionID = active.ID
	report.ActiveTripID = active.TripID
	report.Since = &start
	return report, nil
}

// GetHistory pages through the driver's closed sessions.
func (m *WorkSessionManager) GetHistory(ctx context.Context, driverID string, filter models.SessionHistoryFilter) (*models.SessionPage, error) {
	if driverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	switch filter.Status {
	case "", models.SessionCompleted, models.SessionCancelled:
	default:
		return nil, apperr.Validation("history status must be COMPLETED or CANCELLED, got %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperr.Validation("history 'from' must be before 'to'")
	}
	if filter.Page < 0 || filter.PageSize < 0 {
		return nil, apperr.Validation("page and page_size must not be negative")
	}
	if _, err := m.store.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}
	return m.store.ListSessionHistory(ctx, driverID, storage.NormalizePage(filter))
}

// ImportHistory stores finished sessions recorded elsewhere. The batch is
// rejected as a whole on any malformed row or overlap.
func (m *WorkSessionManager) ImportHistory(ctx context.Context, driverID string, records []models.ImportedSession) ([]*models.WorkSession, error) {
	if driverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	if len(records) == 0 {
		return nil, apperr.Validation("no sessions to import")
	}
	if len(records) > MaxImportBatch {
		return nil, apperr.Validation("at most %d sessions can be imported at once", MaxImportBatch)
	}

	now := m.now().UTC()
	spans := make([]timeutil.Interval, len(records))
	for i, r := range records {
		row := i + 1
		switch {
		case r.TripID == "":
			return nil, apperr.Validation("row %d: trip_id is required", row)
		case r.StartTime.IsZero() || r.EndTime.IsZero():
			return nil, apperr.Validation("row %d: start_time and end_time are required", row)
		case r.EndTime.Before(r.StartTime):
			return nil, apperr.Validation("row %d: end_time is before start_time", row)
		case r.EndTime.After(now):
			return nil, apperr.Validation("row %d: end_time is in the future", row)
		}
		spans[i] = timeutil.Interval{Start: r.StartTime.UTC(), End: r.EndTime.UTC()}
	}
	if i, j := timeutil.FirstOverlap(spans); i >= 0 {
		return nil, apperr.Conflict("rows %d and %d overlap", i+1, j+1)
	}

	if _, err := m.store.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}

	sessions := make([]*models.WorkSession, len(records))
	for i, r := range records {
		end := spans[i].End
		sessions[i] = &models.WorkSession{
			DriverID:  driverID,
			TripID:    r.TripID,
			StartTime: spans[i].Start,
			EndTime:   &end,
			Status:    models.SessionCompleted,
			Source:    models.SessionSourceImported,
		}
	}

	unlock := m.driverLocks.Lock(driverID)
	defer unlock()
	if err := m.store.ImportSessions(ctx, driverID, sessions); err != nil {
		return nil, err
	}
	log.Printf("📥 Imported %d work sessions for driver %s", len(sessions), driverID)
	return sessions, nil
}

// GetCurrentSessionInTrip returns the ACTIVE session on the trip.
func (m *WorkSessionManager) GetCurrentSessionInTrip(ctx context.Context, tripID string) (*models.WorkSession, error) {
	if tripID == "" {
		return nil, apperr.Validation("trip id is required")
	}
	return m.store.GetActiveSessionByTrip(ctx, tripID)
}

// onAssignmentCancelled force-cancels the driver's running session on the trip.
func (m *WorkSessionManager) onAssignmentCancelled(ctx context.Context, e events.Event) error {
	active, err := m.store.GetActiveSessionByDriverAndTrip(ctx, e.DriverID, e.TripID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	reason := "assignment cancelled"
	if e.Reason != "" {
		reason = "assignment cancelled: " + e.Reason
	}
	_, err = m.closeSession(ctx, active.ID, models.SessionCancelled, reason)
	if errors.Is(err, apperr.ErrInvalidState) {
		// Ended concurrently; nothing left to cancel.
		return nil
	}
	return err
}
