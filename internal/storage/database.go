package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/truckpe-crew/internal/apperr"
	"github.com/Ananth-NQI/truckpe-crew/internal/models"
)

// DatabaseStore is the gorm-backed Store used against PostgreSQL (and SQLite locally).
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store over an open connection.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

var _ Store = (*DatabaseStore)(nil)

// AutoMigrate creates or updates every table the scheduling core owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Driver{},
		&models.Trip{},
		&models.PostTrip{},
		&models.PostTripDetail{},
		&models.WorkSession{},
		&models.Assignment{},
	)
}

// Models lists the tables for row counts on the status page.
func Models() map[string]any {
	return map[string]any{
		"drivers":       &models.Driver{},
		"trips":         &models.Trip{},
		"post_trips":    &models.PostTrip{},
		"work_sessions": &models.WorkSession{},
		"assignments":   &models.Assignment{},
	}
}

// Driver operations
func (s *DatabaseStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	var driver models.Driver
	if err := s.db.WithContext(ctx).First(&driver, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "driver "+id)
	}
	return &driver, nil
}

// SaveDriver inserts or replaces a driver. Create runs the BeforeCreate
// defaults on both paths, which Save skips for new rows with a preset ID.
func (s *DatabaseStore) SaveDriver(ctx context.Context, driver *models.Driver) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(driver).Error
	return TranslateError(err, "driver "+driver.ID)
}

func (s *DatabaseStore) UpdateDriverAvailability(ctx context.Context, id string, availability models.DriverAvailability) error {
	res := s.db.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", id).Update("availability", availability)
	if res.Error != nil {
		return TranslateError(res.Error, "driver "+id)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("driver %s not found", id)
	}
	return nil
}

// Trip operations
func (s *DatabaseStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	var trip models.Trip
	if err := s.db.WithContext(ctx).First(&trip, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "trip "+id)
	}
	return &trip, nil
}

func (s *DatabaseStore) SaveTrip(ctx context.Context, trip *models.Trip) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(trip).Error
	return TranslateError(err, "trip "+trip.ID)
}

func (s *DatabaseStore) UpdateTripStatus(ctx context.Context, id string, from, to models.TripStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Trip{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return TranslateError(res.Error, "trip "+id)
	}
	if res.RowsAffected == 0 {
		trip, err := s.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		return apperr.Conflict("trip %s is %s, not %s", id, trip.Status, from)
	}
	return nil
}

// Staffing operations
func (s *DatabaseStore) SavePostTrip(ctx context.Context, post *models.PostTrip) error {
	if post.Status == "" {
		post.Status = models.PostTripOpen
	}
	for i := range post.Details {
		if post.Details[i].TripID == "" {
			post.Details[i].TripID = post.TripID
		}
	}
	return TranslateError(s.db.WithContext(ctx).Create(post).Error, "staffing request for trip "+post.TripID)
}

func (s *DatabaseStore) GetPostTrip(ctx context.Context, id string) (*models.PostTrip, error) {
	var post models.PostTrip
	if err := s.db.WithContext(ctx).Preload("Details").First(&post, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "staffing request "+id)
	}
	return &post, nil
}

func (s *DatabaseStore) GetStaffingDetail(ctx context.Context, tripID string, role models.AssignmentRole) (*models.PostTripDetail, error) {
	var detail models.PostTripDetail
	err := s.db.WithContext(ctx).Where("trip_id = ? AND role = ?", tripID, role).First(&detail).Error
	if err != nil {
		return nil, TranslateError(err, string(role)+" staffing detail for trip "+tripID)
	}
	return &detail, nil
}

func (s *DatabaseStore) ListStaffingDetails(ctx context.Context, tripID string) ([]*models.PostTripDetail, error) {
	var details []*models.PostTripDetail
	err := s.db.WithContext(ctx).Where("trip_id = ?", tripID).Order("role").Find(&details).Error
	if err != nil {
		return nil, TranslateError(err, "staffing details for trip "+tripID)
	}
	return details, nil
}

// Work session operations
func (s *DatabaseStore) CreateActiveSession(ctx context.Context, session *models.WorkSession) error {
	session.Status = models.SessionActive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.WorkSession{}).
			Where("driver_id = ? AND status = ?", session.DriverID, models.SessionActive).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict("driver %s already has an active session", session.DriverID)
		}
		// The partial unique index catches the insert that races past the count.
		return tx.Create(session).Error
	})
	err = TranslateError(err, "work session for driver "+session.DriverID)
	if errors.Is(err, apperr.ErrConflict) {
		return apperr.Conflict("driver %s already has an active session", session.DriverID)
	}
	return err
}

func (s *DatabaseStore) GetSession(ctx context.Context, id string) (*models.WorkSession, error) {
	var session models.WorkSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "work session "+id)
	}
	return &session, nil
}

func (s *DatabaseStore) CloseSession(ctx context.Context, id string, status models.WorkSessionStatus, end time.Time, reason string) error {
	res := s.db.WithContext(ctx).Model(&models.WorkSession{}).
		Where("id = ? AND status = ?", id, models.SessionActive).
		Updates(map[string]any{
			"status":        status,
			"end_time":      end,
			"cancel_reason": reason,
		})
	if res.Error != nil {
		return TranslateError(res.Error, "work session "+id)
	}
	if res.RowsAffected == 0 {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		return apperr.Conflict("work session %s is already %s", id, session.Status)
	}
	return nil
}

func (s *DatabaseStore) findActive(ctx context.Context, what string, query string, args ...any) (*models.WorkSession, error) {
	var session models.WorkSession
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SessionActive).
		Where(query, args...).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("%s has no active session", what)
		}
		return nil, TranslateError(err, what)
	}
	return &session, nil
}

func (s *DatabaseStore) GetActiveSessionByDriver(ctx context.Context, driverID string) (*models.WorkSession, error) {
	return s.findActive(ctx, "driver "+driverID, "driver_id = ?", driverID)
}

func (s *DatabaseStore) GetActiveSessionByTrip(ctx context.Context, tripID string) (*models.WorkSession, error) {
	return s.findActive(ctx, "trip "+tripID, "trip_id = ?", tripID)
}

func (s *DatabaseStore) GetActiveSessionByDriverAndTrip(ctx context.Context, driverID, tripID string) (*models.WorkSession, error) {
	return s.findActive(ctx, "driver "+driverID+" on trip "+tripID, "driver_id = ? AND trip_id = ?", driverID, tripID)
}

func (s *DatabaseStore) ListSessionsSince(ctx context.Context, driverID string, since time.Time) ([]*models.WorkSession, error) {
	var sessions []*models.WorkSession
	err := s.db.WithContext(ctx).
		Where("driver_id = ? AND status <> ?", driverID, models.SessionCancelled).
		Where("(end_time IS NULL OR end_time > ?)", since).
		Order("start_time").
		Find(&sessions).Error
	if err != nil {
		return nil, TranslateError(err, "sessions of driver "+driverID)
	}
	return sessions, nil
}

func (s *DatabaseStore) ListSessionHistory(ctx context.Context, driverID string, filter models.SessionHistoryFilter) (*models.SessionPage, error) {
	filter = NormalizePage(filter)

	query := s.db.WithContext(ctx).Model(&models.WorkSession{}).
		Where("driver_id = ? AND status IN ?", driverID, closedSessionStatuses)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TripID != "" {
		query = query.Where("trip_id = ?", filter.TripID)
	}
	if filter.From != nil {
		query = query.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("start_time < ?", *filter.To)
	}

	query = query.Session(&gorm.Session{})

	page := &models.SessionPage{Items: []*models.WorkSession{}, Page: filter.Page, PageSize: filter.PageSize}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, TranslateError(err, "session history of driver "+driverID)
	}

	order := "start_time DESC"
	if filter.OldestFirst {
		order = "start_time ASC"
	}
	err := query.Order(order).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&page.Items).Error
	if err != nil {
		return nil, TranslateError(err, "session history of driver "+driverID)
	}
	return page, nil
}

func (s *DatabaseStore) ImportSessions(ctx context.Context, driverID string, sessions []*models.WorkSession) error {
	if len(sessions) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, in := range sessions {
			var clash models.WorkSession
			err := tx.Where("driver_id = ? AND status <> ?", driverID, models.SessionCancelled).
				Where("start_time < ?", in.EffectiveEnd(farFuture)).
				Where("(end_time IS NULL OR end_time > ?)", in.StartTime).
				Limit(1).Find(&clash).Error
			if err != nil {
				return err
			}
			if clash.ID != "" {
				return apperr.Conflict("imported session %s - %s overlaps session %s",
					in.StartTime.Format(time.RFC3339), in.EffectiveEnd(farFuture).Format(time.RFC3339), clash.ID)
			}
			in.DriverID = driverID
		}
		return tx.Create(&sessions).Error
	})
	return TranslateError(err, "session import for driver "+driverID)
}

// Assignment operations
func (s *DatabaseStore) CreateAssignmentWithinHeadcount(ctx context.Context, a *models.Assignment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock on the staffing detail serializes creators for this (trip, role).
		var detail models.PostTripDetail
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("trip_id = ? AND role = ?", a.TripID, a.Role).
			First(&detail).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("no %s staffing detail for trip %s", a.Role, a.TripID)
			}
			return err
		}

		var mine models.Assignment
		if err := tx.Where("trip_id = ? AND driver_id = ? AND status IN ?", a.TripID, a.DriverID, models.NonTerminalAssignmentStatuses).
			Limit(1).Find(&mine).Error; err != nil {
			return err
		}
		if mine.ID != "" {
			return apperr.Conflict("driver %s already holds assignment %s on trip %s", a.DriverID, mine.ID, a.TripID)
		}

		var held int64
		if err := tx.Model(&models.Assignment{}).
			Where("trip_id = ? AND role = ? AND status IN ?", a.TripID, a.Role, models.NonTerminalAssignmentStatuses).
			Count(&held).Error; err != nil {
			return err
		}
		if held >= int64(detail.RequiredCount) {
			return apperr.Conflict("headcount for %s on trip %s is exhausted (%d/%d)", a.Role, a.TripID, held, detail.RequiredCount)
		}
		return tx.Create(a).Error
	})
	return TranslateError(err, "assignment on trip "+a.TripID)
}

func (s *DatabaseStore) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	var a models.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err, "assignment "+id)
	}
	return &a, nil
}

func (s *DatabaseStore) ListAssignmentsByTrip(ctx context.Context, tripID string, statuses ...models.AssignmentStatus) ([]*models.Assignment, error) {
	query := s.db.WithContext(ctx).Where("trip_id = ?", tripID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var out []*models.Assignment
	if err := query.Order("created_at, id").Find(&out).Error; err != nil {
		return nil, TranslateError(err, "assignments of trip "+tripID)
	}
	return out, nil
}

func (s *DatabaseStore) FindOpenAssignment(ctx context.Context, tripID, driverID string) (*models.Assignment, error) {
	var a models.Assignment
	err := s.db.WithContext(ctx).
		Where("trip_id = ? AND driver_id = ? AND status IN ?", tripID, driverID, models.NonTerminalAssignmentStatuses).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("driver %s has no open assignment on trip %s", driverID, tripID)
		}
		return nil, TranslateError(err, "assignment on trip "+tripID)
	}
	return &a, nil
}

func (s *DatabaseStore) UpdateAssignmentStatus(ctx context.Context, id string, from, to models.AssignmentStatus, at time.Time, reason string) error {
	updates := map[string]any{"status": to, "decided_at": at}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	res := s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return TranslateError(res.Error, "assignment "+id)
	}
	if res.RowsAffected == 0 {
		a, err := s.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		return apperr.Conflict("assignment %s is %s, not %s", id, a.Status, from)
	}
	return nil
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return TranslateError(err, "database")
	}
	return TranslateError(sqlDB.PingContext(ctx), "database")
}

// TableCounts returns the row count of every table in Models.
func (s *DatabaseStore) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Models()))
	for name, model := range Models() {
		var n int64
		if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
			return nil, TranslateError(err, name)
		}
		counts[name] = n
	}
	return counts, nil
}
