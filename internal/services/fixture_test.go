package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ananth-NQI/truckpe-crew/internal/config"
	"github.com/Ananth-NQI/truckpe-crew/internal/events"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
	"github.com/Ananth-NQI/truckpe-crew/internal/storage"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx         context.Context
	store       *storage.MemoryStore
	bus         *events.Bus
	clock       *fakeClock
	sessions    *WorkSessionManager
	assignments *AssignmentService
	trips       *TripLifecycle
}

func newFixture(t *testing.T, acceptance AcceptancePolicy) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: storage.NewMemoryStore(),
		bus:   events.NewBus(),
		clock: &fakeClock{now: t0},
	}
	policy := config.DefaultPolicy()
	f.sessions = NewWorkSessionManager(f.store, f.bus, policy, f.clock.Now)
	f.trips = NewTripLifecycle(f.store, f.bus, f.clock.Now)
	f.assignments = NewAssignmentService(f.store, f.sessions, DirectoryLicenseChecker{}, acceptance, f.bus, policy, f.clock.Now)
	Wire(f.bus, f.sessions, f.assignments, f.trips)
	return f
}

func (f *fixture) addDriver(t *testing.T, id string) *models.Driver {
	t.Helper()
	expires := t0.AddDate(1, 0, 0)
	d := &models.Driver{
		ID:               id,
		Name:             "Driver " + id,
		Phone:            "98765" + id,
		LicenseNumber:    "TN-" + id,
		LicenseExpiresAt: &expires,
		Verified:         true,
	}
	if err := f.store.SaveDriver(f.ctx, d); err != nil {
		t.Fatalf("save driver: %v", err)
	}
	return d
}

// addTrip creates a trip owned by "owner-1" with an open staffing request.
func (f *fixture) addTrip(t *testing.T, id string, mainCount, assistantCount int) *models.Trip {
	t.Helper()
	trip := &models.Trip{ID: id, OwnerID: "owner-1", OwnerPhone: "+919800000001", Title: "Trip " + id}
	if err := f.store.SaveTrip(f.ctx, trip); err != nil {
		t.Fatalf("save trip: %v", err)
	}
	post := &models.PostTrip{ID: "post-" + id, TripID: id, OwnerID: "owner-1"}
	if mainCount > 0 {
		post.Details = append(post.Details, models.PostTripDetail{Role: models.RoleMain, RequiredCount: mainCount, PricePerPerson: 300000, BonusPerPerson: 50000})
	}
	if assistantCount > 0 {
		post.Details = append(post.Details, models.PostTripDetail{Role: models.RoleAssistant, RequiredCount: assistantCount, PricePerPerson: 150000})
	}
	if err := f.store.SavePostTrip(f.ctx, post); err != nil {
		t.Fatalf("save post trip: %v", err)
	}
	return trip
}

func (f *fixture) tripStatus(t *testing.T, id string) models.TripStatus {
	t.Helper()
	trip, err := f.store.GetTrip(f.ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return trip.Status
}

func (f *fixture) advance(t *testing.T, tripID string, path ...models.TripStatus) {
	t.Helper()
	for _, to := range path {
		if _, err := f.trips.AdvanceTrip(f.ctx, tripID, to, ""); err != nil {
			t.Fatalf("advance trip to %s: %v", to, err)
		}
	}
}

func (f *fixture) assign(t *testing.T, tripID, driverID string, role models.AssignmentRole, source models.AssignmentSource) *models.Assignment {
	t.Helper()
	a, err := f.assignments.CreateAssignment(f.ctx, CreateAssignmentRequest{
		TripID:   tripID,
		DriverID: driverID,
		Role:     role,
		Source:   source,
	})
	if err != nil {
		t.Fatalf("create assignment for %s: %v", driverID, err)
	}
	return a
}

// importHours records a finished session of the given length ending hoursAgo before now.
func (f *fixture) importHours(t *testing.T, driverID string, hoursAgo, length float64) {
	t.Helper()
	end := f.clock.Now().Add(-time.Duration(hoursAgo * float64(time.Hour)))
	start := end.Add(-time.Duration(length * float64(time.Hour)))
	_, err := f.sessions.ImportHistory(f.ctx, driverID, []models.ImportedSession{{TripID: "past-trip", StartTime: start, EndTime: end}})
	if err != nil {
		t.Fatalf("import history: %v", err)
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
