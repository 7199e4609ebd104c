package storage

import (
	"context"
	"time"

	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

// Store defines the interface for storage operations.
//
// Every method takes a context; implementations surface timeouts and lost
// connections as apperr Unavailable, missing rows as NotFound and lost
// compare-and-swap races or uniqueness violations as Conflict.
type Store interface {
	// Driver directory
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	SaveDriver(ctx context.Context, driver *models.Driver) error
	UpdateDriverAvailability(ctx context.Context, id string, availability models.DriverAvailability) error

	// Trip operations
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	SaveTrip(ctx context.Context, trip *models.Trip) error
	// UpdateTripStatus moves the trip only if it is still in from.
	UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) error

	// Staffing requests
	SavePostTrip(ctx context.Context, post *models.PostTrip) error
	GetPostTrip(ctx context.Context, id string) (*models.PostTrip, error)
	GetStaffingDetail(ctx context.Context, tripID string, role models.AssignmentRole) (*models.PostTripDetail, error)
	ListStaffingDetails(ctx context.Context, tripID string) ([]*models.PostTripDetail, error)

	// Work session operations
	// CreateActiveSession fails with Conflict when the driver already has an ACTIVE session.
	CreateActiveSession(ctx context.Context, session *models.WorkSession) error
	GetSession(ctx context.Context, id string) (*models.WorkSession, error)
	// CloseSession moves an ACTIVE session to status with the given end time.
	CloseSession(ctx context.Context, id string, status models.WorkSessionStatus, end time.Time, reason string) error
	GetActiveSessionByDriver(ctx context.Context, driverID string) (*models.WorkSession, error)
	GetActiveSessionByTrip(ctx context.Context, tripID string) (*models.WorkSession, error)
	GetActiveSessionByDriverAndTrip(ctx context.Context, driverID, tripID string) (*models.WorkSession, error)
	// ListSessionsSince returns the driver's non-cancelled sessions still open or ending after since.
	ListSessionsSince(ctx context.Context, driverID string, since time.Time) ([]*models.WorkSession, error)
	ListSessionHistory(ctx context.Context, driverID string, filter models.SessionHistoryFilter) (*models.SessionPage, error)
	// ImportSessions inserts all sessions or none; any overlap with an existing
	// non-cancelled session of the driver fails the batch with Conflict.
	ImportSessions(ctx context.Context, driverID string, sessions []*models.WorkSession) error

	// Assignment operations
	// CreateAssignmentWithinHeadcount inserts the assignment only while the
	// trip role has fewer non-terminal assignments than its required count.
	CreateAssignmentWithinHeadcount(ctx context.Context, assignment *models.Assignment) error
	GetAssignment(ctx context.Context, id string) (*models.Assignment, error)
	// ListAssignmentsByTrip returns the trip's assignments, optionally only those in statuses.
	ListAssignmentsByTrip(ctx context.Context, tripID string, statuses ...models.AssignmentStatus) ([]*models.Assignment, error)
	FindOpenAssignment(ctx context.Context, tripID, driverID string) (*models.Assignment, error)
	// UpdateAssignmentStatus moves the assignment only if it is still in from.
	UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, at time.Time, reason string) error

	Ping(ctx context.Context) error
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage fills in paging defaults.
func NormalizePage(filter models.SessionHistoryFilter) models.SessionHistoryFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = DefaultPageSize
	}
	if filter.PageSize > MaxPageSize {
		filter.PageSize = MaxPageSize
	}
	return filter
}

var closedSessionStatuses = []models.WorkSessionStatus{models.SessionCompleted, models.SessionCancelled}

// farFuture stands in for the end of a session that is still running.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
