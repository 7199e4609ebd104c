package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) *DatabaseStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "crew.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDatabaseStore(db)
}

// forEachStore runs fn against the in-memory and the SQLite-backed store.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func hoursAfter(h float64) time.Time {
	return base.Add(time.Duration(h * float64(time.Hour)))
}

func seedTrip(t *testing.T, s Store, tripID string, mainCount, assistantCount int) {
	t.Helper()
	ctx := context.Background()
	if err := s.SaveTrip(ctx, &models.Trip{ID: tripID, OwnerID: "owner-1", Title: "Chennai to Bengaluru"}); err != nil {
		t.Fatalf("save trip: %v", err)
	}
	post := &models.PostTrip{TripID: tripID, OwnerID: "owner-1"}
	if mainCount > 0 {
		post.Details = append(post.Details, models.PostTripDetail{Role: models.RoleMain, RequiredCount: mainCount, PricePerPerson: 250000})
	}
	if assistantCount > 0 {
		post.Details = append(post.Details, models.PostTripDetail{Role: models.RoleAssistant, RequiredCount: assistantCount})
	}
	if err := s.SavePostTrip(ctx, post); err != nil {
		t.Fatalf("save post trip: %v", err)
	}
}

func TestActiveSessionUniquePerDriver(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := &models.WorkSession{DriverID: "D1", TripID: "T1", StartTime: base}
		if err := s.CreateActiveSession(ctx, first); err != nil {
			t.Fatalf("first start: %v", err)
		}
		err := s.CreateActiveSession(ctx, &models.WorkSession{DriverID: "D1", TripID: "T2", StartTime: hoursAfter(1)})
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected conflict for second active session, got %v", err)
		}
		if err := s.CloseSession(ctx, first.ID, models.SessionCompleted, hoursAfter(2), ""); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := s.CreateActiveSession(ctx, &models.WorkSession{DriverID: "D1", TripID: "T2", StartTime: hoursAfter(3)}); err != nil {
			t.Fatalf("start after close: %v", err)
		}
	})
}

func TestConcurrentSessionStartsAdmitOne(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		var mu sync.Mutex
		successes, conflicts := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.CreateActiveSession(ctx, &models.WorkSession{
					DriverID:  "D1",
					TripID:    fmt.Sprintf("T%d", i),
					StartTime: base,
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, apperr.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if successes != 1 || conflicts != 7 {
			t.Fatalf("expected 1 success and 7 conflicts, got %d/%d", successes, conflicts)
		}
	})
}

func TestCloseSessionIsCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		session := &models.WorkSession{DriverID: "D1", TripID: "T1", StartTime: base}
		if err := s.CreateActiveSession(ctx, session); err != nil {
			t.Fatal(err)
		}
		if err := s.CloseSession(ctx, session.ID, models.SessionCompleted, hoursAfter(4), ""); err != nil {
			t.Fatal(err)
		}
		err := s.CloseSession(ctx, session.ID, models.SessionCancelled, hoursAfter(5), "late cancel")
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected conflict closing twice, got %v", err)
		}
		got, err := s.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.SessionCompleted || got.EndTime == nil || !got.EndTime.Equal(hoursAfter(4)) {
			t.Fatalf("unexpected session after close: %+v", got)
		}
		if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestListSessionsSince(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		old := &models.WorkSession{TripID: "T0", StartTime: hoursAfter(-100), EndTime: ptr(hoursAfter(-95)), Status: models.SessionCompleted}
		straddling := &models.WorkSession{TripID: "T1", StartTime: hoursAfter(-50), EndTime: ptr(hoursAfter(-46)), Status: models.SessionCompleted}
		cancelled := &models.WorkSession{TripID: "T2", StartTime: hoursAfter(-20), EndTime: ptr(hoursAfter(-18)), Status: models.SessionCancelled}
		if err := s.ImportSessions(ctx, "D1", []*models.WorkSession{old, straddling, cancelled}); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateActiveSession(ctx, &models.WorkSession{DriverID: "D1", TripID: "T3", StartTime: hoursAfter(-2)}); err != nil {
			t.Fatal(err)
		}

		got, err := s.ListSessionsSince(ctx, "D1", hoursAfter(-48))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].TripID != "T1" || got[1].TripID != "T3" {
			t.Fatalf("expected straddling and active sessions, got %+v", got)
		}
	})
}

func TestImportSessionsRejectsOverlapAtomically(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		existing := &models.WorkSession{TripID: "T1", StartTime: hoursAfter(0), EndTime: ptr(hoursAfter(5)), Status: models.SessionCompleted}
		if err := s.ImportSessions(ctx, "D1", []*models.WorkSession{existing}); err != nil {
			t.Fatal(err)
		}

		batch := []*models.WorkSession{
			{TripID: "T2", StartTime: hoursAfter(10), EndTime: ptr(hoursAfter(12)), Status: models.SessionCompleted},
			{TripID: "T3", StartTime: hoursAfter(4), EndTime: ptr(hoursAfter(6)), Status: models.SessionCompleted},
		}
		if err := s.ImportSessions(ctx, "D1", batch); !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		page, err := s.ListSessionHistory(ctx, "D1", models.SessionHistoryFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 1 {
			t.Fatalf("failed batch must not insert anything, found %d sessions", page.Total)
		}

		// Touching intervals do not overlap.
		touching := []*models.WorkSession{{TripID: "T4", StartTime: hoursAfter(5), EndTime: ptr(hoursAfter(7)), Status: models.SessionCompleted}}
		if err := s.ImportSessions(ctx, "D1", touching); err != nil {
			t.Fatalf("touching import: %v", err)
		}
	})
}

func TestListSessionHistoryPaging(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var batch []*models.WorkSession
		for i := 0; i < 5; i++ {
			status := models.SessionCompleted
			if i == 4 {
				status = models.SessionCancelled
			}
			batch = append(batch, &models.WorkSession{
				TripID:    fmt.Sprintf("T%d", i),
				StartTime: hoursAfter(float64(i * 10)),
				EndTime:   ptr(hoursAfter(float64(i*10 + 3))),
				Status:    status,
			})
		}
		if err := s.ImportSessions(ctx, "D1", batch); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateActiveSession(ctx, &models.WorkSession{DriverID: "D1", TripID: "T9", StartTime: hoursAfter(100)}); err != nil {
			t.Fatal(err)
		}

		page, err := s.ListSessionHistory(ctx, "D1", models.SessionHistoryFilter{Page: 1, PageSize: 2})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 5 || len(page.Items) != 2 || page.Items[0].TripID != "T4" {
			t.Fatalf("unexpected first page: total=%d items=%+v", page.Total, page.Items)
		}

		page, err = s.ListSessionHistory(ctx, "D1", models.SessionHistoryFilter{
			Status:      models.SessionCompleted,
			OldestFirst: true,
			From:        ptr(hoursAfter(10)),
		})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 3 || page.Items[0].TripID != "T1" || page.PageSize != DefaultPageSize {
			t.Fatalf("unexpected filtered page: %+v", page)
		}
	})
}

func TestHeadcountNeverExceeded(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedTrip(t, s, "T1", 2, 0)

		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.CreateAssignmentWithinHeadcount(ctx, &models.Assignment{
					TripID:   "T1",
					DriverID: fmt.Sprintf("D%d", i),
					Role:     models.RoleMain,
					Source:   models.SourceBid,
					Status:   models.AssignmentOffered,
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if !errors.Is(err, apperr.ErrConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if created != 2 {
			t.Fatalf("expected exactly 2 assignments, got %d", created)
		}

		open, err := s.ListAssignmentsByTrip(ctx, "T1", models.NonTerminalAssignmentStatuses...)
		if err != nil {
			t.Fatal(err)
		}
		if len(open) != 2 {
			t.Fatalf("expected 2 open assignments, got %d", len(open))
		}

		// Releasing a slot makes room for one more.
		if err := s.UpdateAssignmentStatus(ctx, open[0].ID, open[0].Status, models.AssignmentRejected, base, ""); err != nil {
			t.Fatal(err)
		}
		extra := &models.Assignment{TripID: "T1", DriverID: "D99", Role: models.RoleMain, Source: models.SourceOwner, Status: models.AssignmentAccepted}
		if err := s.CreateAssignmentWithinHeadcount(ctx, extra); err != nil {
			t.Fatalf("expected freed slot to be reusable: %v", err)
		}
	})
}

func TestAssignmentRules(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedTrip(t, s, "T1", 1, 1)

		a := &models.Assignment{TripID: "T1", DriverID: "D1", Role: models.RoleMain, Source: models.SourceOwner, Status: models.AssignmentAccepted}
		if err := s.CreateAssignmentWithinHeadcount(ctx, a); err != nil {
			t.Fatal(err)
		}
		dup := &models.Assignment{TripID: "T1", DriverID: "D1", Role: models.RoleAssistant, Source: models.SourceOwner, Status: models.AssignmentAccepted}
		if err := s.CreateAssignmentWithinHeadcount(ctx, dup); !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected conflict for second seat of the same driver, got %v", err)
		}
		missing := &models.Assignment{TripID: "T2", DriverID: "D2", Role: models.RoleMain, Source: models.SourceOwner, Status: models.AssignmentAccepted}
		if err := s.CreateAssignmentWithinHeadcount(ctx, missing); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found for trip without staffing, got %v", err)
		}

		err := s.UpdateAssignmentStatus(ctx, a.ID, models.AssignmentOffered, models.AssignmentAccepted, base, "")
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected CAS conflict, got %v", err)
		}
		if err := s.UpdateAssignmentStatus(ctx, a.ID, models.AssignmentAccepted, models.AssignmentCancelled, base, "truck broke down"); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetAssignment(ctx, a.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.AssignmentCancelled || got.CancelReason != "truck broke down" || got.DecidedAt == nil {
			t.Fatalf("unexpected assignment: %+v", got)
		}
		if _, err := s.FindOpenAssignment(ctx, "T1", "D1"); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("cancelled assignment must not be open, got %v", err)
		}
	})
}

func TestUpdateTripStatusIsCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedTrip(t, s, "T1", 1, 0)
		if err := s.UpdateTripStatus(ctx, "T1", models.TripCreated, models.TripLookingForDriver); err != nil {
			t.Fatal(err)
		}
		err := s.UpdateTripStatus(ctx, "T1", models.TripCreated, models.TripReadyForContract)
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("expected conflict on stale status, got %v", err)
		}
		if err := s.UpdateTripStatus(ctx, "nope", models.TripCreated, models.TripCancelled); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		details, err := s.ListStaffingDetails(ctx, "T1")
		if err != nil {
			t.Fatal(err)
		}
		if len(details) != 1 || details[0].RequiredCount != 1 {
			t.Fatalf("unexpected details: %+v", details)
		}
	})
}

func TestDriverAvailability(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.SaveDriver(ctx, &models.Driver{ID: "D1", Name: "Murugan", Phone: "9876543210"}); err != nil {
			t.Fatal(err)
		}
		if err := s.UpdateDriverAvailability(ctx, "D1", models.DriverOnTrip); err != nil {
			t.Fatal(err)
		}
		d, err := s.GetDriver(ctx, "D1")
		if err != nil {
			t.Fatal(err)
		}
		if d.Availability != models.DriverOnTrip || d.Phone != "+919876543210" {
			t.Fatalf("unexpected driver: %+v", d)
		}
		if err := s.UpdateDriverAvailability(ctx, "D2", models.DriverAvailable); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestSaveAppliesDefaults(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.SaveTrip(ctx, &models.Trip{ID: "T1", OwnerID: "owner-1"}); err != nil {
			t.Fatal(err)
		}
		trip, err := s.GetTrip(ctx, "T1")
		if err != nil {
			t.Fatal(err)
		}
		if trip.Status != models.TripCreated {
			t.Fatalf("new trip should start CREATED, got %q", trip.Status)
		}

		if err := s.SaveDriver(ctx, &models.Driver{ID: "D1", Name: "Murugan", Phone: "9876543210"}); err != nil {
			t.Fatal(err)
		}
		d, err := s.GetDriver(ctx, "D1")
		if err != nil {
			t.Fatal(err)
		}
		if d.Availability != models.DriverAvailable || d.Phone != "+919876543210" {
			t.Fatalf("driver defaults not applied: %+v", d)
		}

		// Saving again replaces the row instead of failing on the key.
		d.Name = "Murugan K"
		d.Verified = true
		if err := s.SaveDriver(ctx, d); err != nil {
			t.Fatal(err)
		}
		again, err := s.GetDriver(ctx, "D1")
		if err != nil {
			t.Fatal(err)
		}
		if again.Name != "Murugan K" || !again.Verified {
			t.Fatalf("driver not updated: %+v", again)
		}
	})
}

func TestDriverHoldsOneSeatPerTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seedTrip(t, s, "T1", 1, 1)

		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for _, role := range []models.AssignmentRole{models.RoleMain, models.RoleAssistant} {
			wg.Add(1)
			go func(role models.AssignmentRole) {
				defer wg.Done()
				err := s.CreateAssignmentWithinHeadcount(ctx, &models.Assignment{
					TripID:   "T1",
					DriverID: "D1",
					Role:     role,
					Source:   models.SourceBid,
					Status:   models.AssignmentOffered,
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if !errors.Is(err, apperr.ErrConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}(role)
		}
		wg.Wait()
		if created != 1 {
			t.Fatalf("driver should hold exactly one seat, got %d", created)
		}
	})
}

func TestOpenSeatIndex(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	seedTrip(t, s, "T1", 1, 1)

	// Write past the transaction checks, as two racing role transactions would.
	first := &models.Assignment{TripID: "T1", DriverID: "D1", Role: models.RoleMain, Source: models.SourceBid, Status: models.AssignmentOffered}
	if err := s.db.WithContext(ctx).Create(first).Error; err != nil {
		t.Fatal(err)
	}
	second := &models.Assignment{TripID: "T1", DriverID: "D1", Role: models.RoleAssistant, Source: models.SourceBid, Status: models.AssignmentOffered}
	err := TranslateError(s.db.WithContext(ctx).Create(second).Error, "assignment")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected the index to refuse a second open seat, got %v", err)
	}

	// Closed assignments do not count.
	if err := s.UpdateAssignmentStatus(ctx, first.ID, models.AssignmentOffered, models.AssignmentRejected, base, ""); err != nil {
		t.Fatal(err)
	}
	third := &models.Assignment{TripID: "T1", DriverID: "D1", Role: models.RoleAssistant, Source: models.SourceBid, Status: models.AssignmentOffered}
	if err := s.db.WithContext(ctx).Create(third).Error; err != nil {
		t.Fatalf("rejected seat should not block a new one: %v", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
