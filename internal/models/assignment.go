package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssignmentRole is the seat a driver fills on a trip.
type AssignmentRole string

const (
	RoleMain      AssignmentRole = "MAIN"
	RoleAssistant AssignmentRole = "ASSISTANT"
)

func (r AssignmentRole) Valid() bool {
	switch r {
	case RoleMain, RoleAssistant:
		return true
	}
	return false
}

// AssignmentStatus is the lifecycle state of a trip-driver assignment.
type AssignmentStatus string

const (
	AssignmentOffered   AssignmentStatus = "OFFERED"
	AssignmentAccepted  AssignmentStatus = "ACCEPTED"
	AssignmentRejected  AssignmentStatus = "REJECTED"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentOffered, AssignmentAccepted, AssignmentRejected, AssignmentCompleted, AssignmentCancelled:
		return true
	}
	return false
}

// Terminal reports whether the assignment no longer holds a headcount slot.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentOffered, AssignmentAccepted:
		return false
	case AssignmentRejected, AssignmentCompleted, AssignmentCancelled:
		return true
	}
	return true
}

// NonTerminalAssignmentStatuses are the statuses counted against headcount.
var NonTerminalAssignmentStatuses = []AssignmentStatus{AssignmentOffered, AssignmentAccepted}

// AssignmentSource tells how the assignment was created.
type AssignmentSource string

const (
	SourceOwner AssignmentSource = "OWNER"
	SourceBid   AssignmentSource = "BID"
)

func (s AssignmentSource) Valid() bool {
	switch s {
	case SourceOwner, SourceBid:
		return true
	}
	return false
}

// Assignment is a driver's committed participation in a trip (TripDriverAssignment).
// A driver holds at most one OFFERED or ACCEPTED assignment per trip, across roles.
type Assignment struct {
	ID            string           `json:"id" gorm:"primaryKey;size:64"`
	TripID        string           `json:"trip_id" gorm:"size:64;not null;index:idx_assignments_trip_role;uniqueIndex:idx_assignments_open_seat,where:status = 'OFFERED' OR status = 'ACCEPTED'"`
	DriverID      string           `json:"driver_id" gorm:"size:64;not null;index;uniqueIndex:idx_assignments_open_seat"`
	Role          AssignmentRole   `json:"role" gorm:"size:16;not null;index:idx_assignments_trip_role"`
	Source        AssignmentSource `json:"source" gorm:"size:16;not null"`
	Status        AssignmentStatus `json:"status" gorm:"size:16;not null;index"`
	BaseAmount    Money            `json:"base_amount"`
	BonusAmount   Money            `json:"bonus_amount"`
	StartLocation Location         `json:"start_location" gorm:"embedded;embeddedPrefix:start_"`
	EndLocation   Location         `json:"end_location" gorm:"embedded;embeddedPrefix:end_"`
	DecidedAt     *time.Time       `json:"decided_at"`
	CancelReason  string           `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// BeforeCreate generates the assignment ID
func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
