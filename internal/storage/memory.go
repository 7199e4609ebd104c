package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/timeutil"
)

// MemoryStore holds all data in memory for local runs and tests.
// Reads return copies so callers never share rows with the store.
type MemoryStore struct {
	drivers     map[string]*models.Driver
	trips       map[string]*models.Trip
	postTrips   map[string]*models.PostTrip
	details     map[string]*models.PostTripDetail // keyed by tripID/role
	sessions    map[string]*models.WorkSession
	assignments map[string]*models.Assignment

	// Mutexes for thread safety
	driverMu     sync.RWMutex
	tripMu       sync.RWMutex
	staffingMu   sync.RWMutex
	sessionMu    sync.RWMutex
	assignmentMu sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:     make(map[string]*models.Driver),
		trips:       make(map[string]*models.Trip),
		postTrips:   make(map[string]*models.PostTrip),
		details:     make(map[string]*models.PostTripDetail),
		sessions:    make(map[string]*models.WorkSession),
		assignments: make(map[string]*models.Assignment),
	}
}

var _ Store = (*MemoryStore)(nil)

func detailKey(tripID string, role models.AssignmentRole) string {
	return tripID + "/" + string(role)
}

// Driver operations
func (m *MemoryStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable(err, "driver lookup interrupted")
	}
	m.driverMu.RLock()
	defer m.driverMu.RUnlock()

	driver, exists := m.drivers[id]
	if !exists {
		return nil, apperr.NotFound("driver %s not found", id)
	}
	cp := *driver
	return &cp, nil
}

func (m *MemoryStore) SaveDriver(ctx context.Context, driver *models.Driver) error {
	if err := driver.BeforeCreate(nil); err != nil {
		return err
	}
	m.driverMu.Lock()
	defer m.driverMu.Unlock()

	now := time.Now()
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = now
	}
	driver.UpdatedAt = now
	cp := *driver
	m.drivers[driver.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateDriverAvailability(ctx context.Context, id string, availability models.DriverAvailability) error {
	m.driverMu.Lock()
	defer m.driverMu.Unlock()

	driver, exists := m.drivers[id]
	if !exists {
		return apperr.NotFound("driver %s not found", id)
	}
	driver.Availability = availability
	driver.UpdatedAt = time.Now()
	return nil
}

// Trip operations
func (m *MemoryStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable(err, "trip lookup interrupted")
	}
	m.tripMu.RLock()
	defer m.tripMu.RUnlock()

	trip, exists := m.trips[id]
	if !exists {
		return nil, apperr.NotFound("trip %s not found", id)
	}
	cp := *trip
	return &cp, nil
}

func (m *MemoryStore) SaveTrip(ctx context.Context, trip *models.Trip) error {
	if err := trip.BeforeCreate(nil); err != nil {
		return err
	}
	m.tripMu.Lock()
	defer m.tripMu.Unlock()

	now := time.Now()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	trip.UpdatedAt = now
	cp := *trip
	m.trips[trip.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) error {
	m.tripMu.Lock()
	defer m.tripMu.Unlock()

	trip, exists := m.trips[id]
	if !exists {
		return apperr.NotFound("trip %s not found", id)
	}
	if trip.Status != from {
		return apperr.Conflict("trip %s is %s, not %s", id, trip.Status, from)
	}
	trip.Status = to
	trip.UpdatedAt = time.Now()
	return nil
}

// Staffing operations
func (m *MemoryStore) SavePostTrip(ctx context.Context, post *models.PostTrip) error {
	if err := post.BeforeCreate(nil); err != nil {
		return err
	}
	if post.Status == "" {
		post.Status = models.PostTripOpen
	}
	m.staffingMu.Lock()
	defer m.staffingMu.Unlock()

	for i := range post.Details {
		d := &post.Details[i]
		if err := d.BeforeCreate(nil); err != nil {
			return err
		}
		d.PostTripID = post.ID
		if d.TripID == "" {
			d.TripID = post.TripID
		}
		if existing, ok := m.details[detailKey(d.TripID, d.Role)]; ok && existing.PostTripID != post.ID {
			return apperr.Conflict("trip %s already has a %s staffing detail", d.TripID, d.Role)
		}
	}
	now := time.Now()
	post.CreatedAt, post.UpdatedAt = now, now
	for i := range post.Details {
		d := post.Details[i]
		d.CreatedAt, d.UpdatedAt = now, now
		m.details[detailKey(d.TripID, d.Role)] = &d
	}
	cp := *post
	cp.Details = append([]models.PostTripDetail(nil), post.Details...)
	m.postTrips[post.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPostTrip(ctx context.Context, id string) (*models.PostTrip, error) {
	m.staffingMu.RLock()
	defer m.staffingMu.RUnlock()

	post, exists := m.postTrips[id]
	if !exists {
		return nil, apperr.NotFound("staffing request %s not found", id)
	}
	cp := *post
	cp.Details = append([]models.PostTripDetail(nil), post.Details...)
	return &cp, nil
}

func (m *MemoryStore) GetStaffingDetail(ctx context.Context, tripID string, role models.AssignmentRole) (*models.PostTripDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable(err, "staffing lookup interrupted")
	}
	m.staffingMu.RLock()
	defer m.staffingMu.RUnlock()

	detail, exists := m.details[detailKey(tripID, role)]
	if !exists {
		return nil, apperr.NotFound("no %s staffing detail for trip %s", role, tripID)
	}
	cp := *detail
	return &cp, nil
}

func (m *MemoryStore) ListStaffingDetails(ctx context.Context, tripID string) ([]*models.PostTripDetail, error) {
	m.staffingMu.RLock()
	defer m.staffingMu.RUnlock()

	var out []*models.PostTripDetail
	for _, d := range m.details {
		if d.TripID == tripID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

// Work session operations
func (m *MemoryStore) CreateActiveSession(ctx context.Context, session *models.WorkSession) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable(err, "session start interrupted")
	}
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	for _, s := range m.sessions {
		if s.DriverID == session.DriverID && s.Status == models.SessionActive {
			return apperr.Conflict("driver %s already has an active session %s", session.DriverID, s.ID)
		}
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Source == "" {
		session.Source = models.SessionSourceLive
	}
	session.Status = models.SessionActive
	now := time.Now()
	session.CreatedAt, session.UpdatedAt = now, now
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.WorkSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, apperr.NotFound("work session %s not found", id)
	}
	return copySession(s), nil
}

func (m *MemoryStore) CloseSession(ctx context.Context, id string, status models.WorkSessionStatus, end time.Time, reason string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, exists := m.sessions[id]
	if !exists {
		return apperr.NotFound("work session %s not found", id)
	}
	if s.Status != models.SessionActive {
		return apperr.Conflict("work session %s is already %s", id, s.Status)
	}
	s.Status = status
	s.EndTime = &end
	s.CancelReason = reason
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) findActive(match func(*models.WorkSession) bool) *models.WorkSession {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	for _, s := range m.sessions {
		if s.Status == models.SessionActive && match(s) {
			return copySession(s)
		}
	}
	return nil
}

func (m *MemoryStore) GetActiveSessionByDriver(ctx context.Context, driverID string) (*models.WorkSession, error) {
	if s := m.findActive(func(s *models.WorkSession) bool { return s.DriverID == driverID }); s != nil {
		return s, nil
	}
	return nil, apperr.NotFound("driver %s has no active session", driverID)
}

func (m *MemoryStore) GetActiveSessionByTrip(ctx context.Context, tripID string) (*models.WorkSession, error) {
	if s := m.findActive(func(s *models.WorkSession) bool { return s.TripID == tripID }); s != nil {
		return s, nil
	}
	return nil, apperr.NotFound("trip %s has no active session", tripID)
}

func (m *MemoryStore) GetActiveSessionByDriverAndTrip(ctx context.Context, driverID, tripID string) (*models.WorkSession, error) {
	if s := m.findActive(func(s *models.WorkSession) bool { return s.DriverID == driverID && s.TripID == tripID }); s != nil {
		return s, nil
	}
	return nil, apperr.NotFound("driver %s has no active session on trip %s", driverID, tripID)
}

func (m *MemoryStore) ListSessionsSince(ctx context.Context, driverID string, since time.Time) ([]*models.WorkSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable(err, "session history read interrupted")
	}
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var out []*models.WorkSession
	for _, s := range m.sessions {
		if s.DriverID != driverID || s.Status == models.SessionCancelled {
			continue
		}
		if s.EndTime == nil || s.EndTime.After(since) {
			out = append(out, copySession(s))
		}
	}
	sortByStart(out, true)
	return out, nil
}

func (m *MemoryStore) ListSessionHistory(ctx context.Context, driverID string, filter models.SessionHistoryFilter) (*models.SessionPage, error) {
	filter = NormalizePage(filter)

	m.sessionMu.RLock()
	var matched []*models.WorkSession
	for _, s := range m.sessions {
		if s.DriverID != driverID || !s.Status.Terminal() {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.TripID != "" && s.TripID != filter.TripID {
			continue
		}
		if filter.From != nil && s.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.StartTime.Before(*filter.To) {
			continue
		}
		matched = append(matched, copySession(s))
	}
	m.sessionMu.RUnlock()

	sortByStart(matched, filter.OldestFirst)
	page := &models.SessionPage{
		Items:    []*models.WorkSession{},
		Total:    int64(len(matched)),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	start := (filter.Page - 1) * filter.PageSize
	if start < len(matched) {
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[start:end]
	}
	return page, nil
}

func (m *MemoryStore) ImportSessions(ctx context.Context, driverID string, sessions []*models.WorkSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	for _, in := range sessions {
		incoming := timeutil.Interval{Start: in.StartTime, End: in.EffectiveEnd(farFuture)}
		for _, s := range m.sessions {
			if s.DriverID != driverID || s.Status == models.SessionCancelled {
				continue
			}
			existing := timeutil.Interval{Start: s.StartTime, End: s.EffectiveEnd(farFuture)}
			if incoming.Overlaps(existing) {
				return apperr.Conflict("imported session %s - %s overlaps session %s",
					in.StartTime.Format(time.RFC3339), in.EffectiveEnd(farFuture).Format(time.RFC3339), s.ID)
			}
		}
	}

	now := time.Now()
	for _, in := range sessions {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		in.DriverID = driverID
		in.CreatedAt, in.UpdatedAt = now, now
		m.sessions[in.ID] = copySession(in)
	}
	return nil
}

// Assignment operations
func (m *MemoryStore) CreateAssignmentWithinHeadcount(ctx context.Context, a *models.Assignment) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable(err, "assignment create interrupted")
	}
	m.assignmentMu.Lock()
	defer m.assignmentMu.Unlock()

	m.staffingMu.RLock()
	detail, exists := m.details[detailKey(a.TripID, a.Role)]
	m.staffingMu.RUnlock()
	if !exists {
		return apperr.NotFound("no %s staffing detail for trip %s", a.Role, a.TripID)
	}

	held := 0
	for _, existing := range m.assignments {
		if existing.TripID != a.TripID || existing.Status.Terminal() {
			continue
		}
		if existing.DriverID == a.DriverID {
			return apperr.Conflict("driver %s already holds assignment %s on trip %s", a.DriverID, existing.ID, a.TripID)
		}
		if existing.Role == a.Role {
			held++
		}
	}
	if held >= detail.RequiredCount {
		return apperr.Conflict("headcount for %s on trip %s is exhausted (%d/%d)", a.Role, a.TripID, held, detail.RequiredCount)
	}

	if err := a.BeforeCreate(nil); err != nil {
		return err
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	m.assignmentMu.RLock()
	defer m.assignmentMu.RUnlock()

	a, exists := m.assignments[id]
	if !exists {
		return nil, apperr.NotFound("assignment %s not found", id)
	}
	return copyAssignment(a), nil
}

func (m *MemoryStore) ListAssignmentsByTrip(ctx context.Context, tripID string, statuses ...models.AssignmentStatus) ([]*models.Assignment, error) {
	m.assignmentMu.RLock()
	defer m.assignmentMu.RUnlock()

	var out []*models.Assignment
	for _, a := range m.assignments {
		if a.TripID != tripID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, a.Status) {
			continue
		}
		out = append(out, copyAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) FindOpenAssignment(ctx context.Context, tripID, driverID string) (*models.Assignment, error) {
	m.assignmentMu.RLock()
	defer m.assignmentMu.RUnlock()

	for _, a := range m.assignments {
		if a.TripID == tripID && a.DriverID == driverID && !a.Status.Terminal() {
			return copyAssignment(a), nil
		}
	}
	return nil, apperr.NotFound("driver %s has no open assignment on trip %s", driverID, tripID)
}

func (m *MemoryStore) UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, at time.Time, reason string) error {
	m.assignmentMu.Lock()
	defer m.assignmentMu.Unlock()

	a, exists := m.assignments[id]
	if !exists {
		return apperr.NotFound("assignment %s not found", id)
	}
	if a.Status != from {
		return apperr.Conflict("assignment %s is %s, not %s", id, a.Status, from)
	}
	a.Status = to
	a.DecidedAt = &at
	if reason != "" {
		a.CancelReason = reason
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func copySession(s *models.WorkSession) *models.WorkSession {
	cp := *s
	if s.EndTime != nil {
		end := *s.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func copyAssignment(a *models.Assignment) *models.Assignment {
	cp := *a
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		cp.DecidedAt = &at
	}
	return &cp
}

func sortByStart(sessions []*models.WorkSession, oldestFirst bool) {
	sort.Slice(sessions, func(i, j int) bool {
		if oldestFirst {
			return sessions[i].StartTime.Before(sessions[j].StartTime)
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

func containsStatus(statuses []models.AssignmentStatus, s models.AssignmentStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
