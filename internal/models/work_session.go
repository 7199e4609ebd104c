package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkSessionStatus is the lifecycle state of a work session.
type WorkSessionStatus string

const (
	SessionActive    WorkSessionStatus = "ACTIVE"
	SessionCompleted WorkSessionStatus = "COMPLETED"
	SessionCancelled WorkSessionStatus = "CANCELLED"
)

func (s WorkSessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s WorkSessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionCancelled:
		return true
	case SessionActive:
		return false
	}
	return true
}

// WorkSessionSource records where a session row came from.
type WorkSessionSource string

const (
	SessionSourceLive     WorkSessionSource = "LIVE"
	SessionSourceImported WorkSessionSource = "IMPORTED"
)

// WorkSession is one continuous driving engagement of a driver on a trip.
// The partial unique index keeps at most one ACTIVE row per driver.
type WorkSession struct {
	ID           string            `json:"id" gorm:"primaryKey;size:64"`
	DriverID     string            `json:"driver_id" gorm:"size:64;not null;index;uniqueIndex:idx_work_sessions_one_active,where:status = 'ACTIVE'"`
	TripID       string            `json:"trip_id" gorm:"size:64;not null;index"`
	StartTime    time.Time         `json:"start_time" gorm:"not null;index"`
	EndTime      *time.Time        `json:"end_time"`
	Status       WorkSessionStatus `json:"status" gorm:"size:16;not null;index"`
	Source       WorkSessionSource `json:"source" gorm:"size:16;default:LIVE"`
	CancelReason string            `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// BeforeCreate generates the session ID
func (s *WorkSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Source == "" {
		s.Source = SessionSourceLive
	}
	return nil
}

// DurationHours returns (EndTime or now) - StartTime in hours.
func (s *WorkSession) DurationHours(now time.Time) float64 {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime).Hours()
}

// EffectiveEnd returns EndTime, or now while the session is still open.
func (s *WorkSession) EffectiveEnd(now time.Time) time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return now
}

// SessionHistoryFilter narrows a driver's closed session history.
type SessionHistoryFilter struct {
	Status      WorkSessionStatus `json:"status" query:"status"`
	TripID      string            `json:"trip_id" query:"trip_id"`
	From        *time.Time        `json:"from" query:"from"`
	To          *time.Time        `json:"to" query:"to"`
	Page        int               `json:"page" query:"page"`
	PageSize    int               `json:"page_size" query:"page_size"`
	OldestFirst bool              `json:"oldest_first" query:"oldest_first"`
}

// SessionPage is one page of session history.
type SessionPage struct {
	Items    []*WorkSession `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// ImportedSession is one externally recorded, already finished session.
type ImportedSession struct {
	TripID    string    `json:"trip_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
